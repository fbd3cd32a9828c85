package proxy

import "errors"

// The proxy error taxonomy. Every failure is a whole-operation abort with no
// partial state change; callers resubmit with corrected inputs. Vault errors
// are not part of this set; they propagate unwrapped through the forwarding
// call.
var (
	// ErrNotWhitelistedAdmin rejects a configuration mutation from a
	// non-admin caller.
	ErrNotWhitelistedAdmin = errors.New("caller is not a whitelisted admin")

	// ErrInsufficientValue rejects a payment below fee plus vault cost, or
	// a single deposit whose inverse amount resolves to zero.
	ErrInsufficientValue = errors.New("insufficient value for fee and vault cost")

	// ErrInvalidMultisigAddress rejects a zero fee recipient at construction.
	ErrInvalidMultisigAddress = errors.New("fee recipient address is zero")

	// ErrInvalidMultiVaultAddress rejects a zero vault address at construction.
	ErrInvalidMultiVaultAddress = errors.New("vault address is zero")

	// ErrTransferFailed signals a fee transfer that could not complete;
	// the vault call is rolled back with it.
	ErrTransferFailed = errors.New("fee transfer to recipient failed")

	// ErrWrongArrayLengths rejects co-indexed parameter lists of
	// mismatched length before any computation.
	ErrWrongArrayLengths = errors.New("co-indexed arrays have different lengths")

	// ErrZeroAddress rejects a zero address passed to a setter.
	ErrZeroAddress = errors.New("zero address")

	// ErrFeePercentageTooHigh rejects a percentage fee above 10000 basis
	// points.
	ErrFeePercentageTooHigh = errors.New("fee percentage exceeds 10000 basis points")

	// ErrNegativeFixedFee rejects a negative fixed fee.
	ErrNegativeFixedFee = errors.New("fixed fee must not be negative")
)
