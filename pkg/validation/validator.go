package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Dataset bounds
	MaxFeatures = 64
	MaxPoints   = 1 << 28

	// ErrOutOfRange is returned when a dataset dimension exceeds its bounds
	ErrOutOfRange = errors.New("value out of range")

	// Regular expressions
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	keyPattern    = regexp.MustCompile(`^[A-Za-z0-9!_.*'()/-]+$`)

	addressSchemes = []string{"tcp://", "ipc://", "inproc://"}
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return ValidateAddress(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		return ValidateLocation(fl.Field().String()) == nil
	})
}

// Struct validates v against its validate struct tags. Every failing field is
// reported.
func Struct(v any) error {
	return errors.Join(structErrors(v)...)
}

func structErrors(v any) []error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []error{err}
	}
	errs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		errs = append(errs, formatFieldError(e))
	}
	return errs
}

// ValidateFeatureCount checks a dataset's feature dimension
func ValidateFeatureCount(f int) error {
	if f < 1 || f > MaxFeatures {
		return fmt.Errorf("%w: feature count %d not in [1, %d]", ErrOutOfRange, f, MaxFeatures)
	}
	return nil
}

// ValidatePointCount checks a dataset's point count
func ValidatePointCount(n int) error {
	if n < 0 || n > MaxPoints {
		return fmt.Errorf("%w: point count %d not in [0, %d]", ErrOutOfRange, n, MaxPoints)
	}
	return nil
}

// ValidateAddress checks a transport address
func ValidateAddress(addr string) error {
	for _, scheme := range addressSchemes {
		if strings.HasPrefix(addr, scheme) && len(addr) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("address %q must use one of %v", addr, addressSchemes)
}

// ValidateLocation checks an input or output location. Anything not starting
// with s3:// is a local path.
func ValidateLocation(loc string) error {
	if loc == "" {
		return errors.New("location cannot be empty")
	}
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	return ValidateObjectKey(key)
}

// ValidateBucketName validates an S3 bucket name
func ValidateBucketName(bucket string) error {
	if !bucketPattern.MatchString(bucket) || strings.Contains(bucket, "..") {
		return fmt.Errorf("bucket name '%s' is invalid (3-63 lowercase letters, digits, dots or hyphens)", bucket)
	}
	return nil
}

// ValidateObjectKey validates an S3 object key
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.New("object key cannot be empty")
	}
	if len(key) > 1024 {
		return fmt.Errorf("object key exceeds maximum length of 1024 bytes")
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("object key '%s' contains characters outside the safe set", key)
	}
	return nil
}

// formatFieldError converts a validator error to a more user-friendly format
func formatFieldError(e validator.FieldError) error {
	field := e.Field()
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min", "gte":
		return fmt.Errorf("%s: must be at least %s", field, param)
	case "max", "lte":
		return fmt.Errorf("%s: must not exceed %s", field, param)
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", field, param)
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s]", field, param)
	case "address":
		return fmt.Errorf("%s: %w", field, ValidateAddress(fmt.Sprint(e.Value())))
	case "location":
		return fmt.Errorf("%s: %w", field, ValidateLocation(fmt.Sprint(e.Value())))
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
