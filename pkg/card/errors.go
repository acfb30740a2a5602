package card

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is.
var (
	ErrAddressUnreachable  = errors.New("address unreachable")
	ErrMalformedDescriptor = errors.New("malformed descriptor")
)

// AddressUnreachableError is returned when the card could not be fetched.
type AddressUnreachableError struct {
	Address string
	Err     error
}

func (e *AddressUnreachableError) Error() string {
	return fmt.Sprintf("%s - %s: %s: %v", resolverLogPrefix, ErrAddressUnreachable, e.Address, e.Err)
}

func (e *AddressUnreachableError) Unwrap() []error { return []error{ErrAddressUnreachable, e.Err} }

// MalformedDescriptorError is returned when the card was fetched but cannot be used.
type MalformedDescriptorError struct {
	Address string
	Reason  string
	Err     error
}

func (e *MalformedDescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s - %s: %s: %s: %v", resolverLogPrefix, ErrMalformedDescriptor, e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s - %s: %s: %s", resolverLogPrefix, ErrMalformedDescriptor, e.Address, e.Reason)
}

func (e *MalformedDescriptorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedDescriptor}
	}
	return []error{ErrMalformedDescriptor, e.Err}
}
