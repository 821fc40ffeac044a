package forecast

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable is matched by errors.Is for a ProviderUnavailableError.
var ErrProviderUnavailable = errors.New("forecast unavailable, try again shortly")

// ProviderTransportError is a network, timeout, non-2xx or decode failure.
// The router retries it once against the global provider.
type ProviderTransportError struct {
	Provider string
	Err      error
}

func (e *ProviderTransportError) Error() string {
	return fmt.Sprintf("provider %s transport: %v", e.Provider, e.Err)
}

func (e *ProviderTransportError) Unwrap() error { return e.Err }

// ProviderNoDataError means the provider answered but had nothing for the requested horizon.
// It is fallback-eligible but never retried against the same provider.
type ProviderNoDataError struct {
	Provider string
	Reason   string
}

func (e *ProviderNoDataError) Error() string {
	return fmt.Sprintf("provider %s returned no data: %s", e.Provider, e.Reason)
}

// ProviderUnavailableError means both the primary and the fallback failed.
type ProviderUnavailableError struct {
	Primary  error
	Fallback error
}

func (e *ProviderUnavailableError) Error() string {
	switch {
	case e.Primary == nil:
		return fmt.Sprintf("%v (fallback: %v)", ErrProviderUnavailable, e.Fallback)
	case e.Fallback == nil:
		return fmt.Sprintf("%v (primary: %v)", ErrProviderUnavailable, e.Primary)
	}
	return fmt.Sprintf("%v (primary: %v; fallback: %v)", ErrProviderUnavailable, e.Primary, e.Fallback)
}

// Is lets errors.Is(err, ErrProviderUnavailable) match.
func (e *ProviderUnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// Unwrap exposes both causes to errors.Is / errors.As.
func (e *ProviderUnavailableError) Unwrap() []error {
	var errs []error
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// Transport wraps err as a ProviderTransportError unless it already is a provider error.
func Transport(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *ProviderTransportError
	var nd *ProviderNoDataError
	if errors.As(err, &te) || errors.As(err, &nd) {
		return err
	}
	return &ProviderTransportError{Provider: provider, Err: err}
}

// NoData builds a ProviderNoDataError.
func NoData(provider, reason string) error {
	return &ProviderNoDataError{Provider: provider, Reason: reason}
}
