package publish

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateMetadata checks trimmed metadata and reports one message per field.
func ValidateMetadata(md Metadata) error {
	return structErrors(validate.Struct(md.normalized()), "")
}

func validateTracks(tracks []TrackInput, maxTracks int) error {
	if maxTracks > 0 && len(tracks)+1 > maxTracks {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many tracks").
			WithDetails(map[string]string{"tracks": fmt.Sprintf("must be at most %d", maxTracks)})
	}
	details := map[string]string{}
	for i, t := range tracks {
		t.Title = strings.TrimSpace(t.Title)
		t.AudioCID = strings.TrimSpace(t.AudioCID)
		if err := validate.Struct(t); err != nil {
			mergeDetails(details, structErrors(err, fmt.Sprintf("tracks[%d].", i)))
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

// ValidateTiers applies the tier rules: at least one tier enabled, each
// enabled tier priced above zero with a supply in (0, MaxTierSupply].
func ValidateTiers(tiers []TierInput) error {
	var (
		combined error
		details  = map[string]string{}
		seen     = map[enums.Tier]bool{}
		enabled  int
	)
	for _, t := range tiers {
		if !t.Tier.IsValid() {
			combined = multierr.Append(combined, fmt.Errorf("unknown tier %d", uint8(t.Tier)))
			details["tiers"] = "contains an unknown tier"
			continue
		}
		key := "tiers." + t.Tier.String()
		if seen[t.Tier] {
			combined = multierr.Append(combined, fmt.Errorf("tier %s given twice", t.Tier))
			details[key] = "is duplicated"
			continue
		}
		seen[t.Tier] = true
		if !t.Enabled {
			continue
		}
		enabled++
		if t.Price == nil || t.Price.Sign() <= 0 {
			combined = multierr.Append(combined, fmt.Errorf("tier %s price must be positive", t.Tier))
			details[key+".price"] = "must be greater than zero"
		}
		if t.MaxSupply == 0 || t.MaxSupply > MaxTierSupply {
			combined = multierr.Append(combined, fmt.Errorf("tier %s max supply out of range", t.Tier))
			details[key+".max_supply"] = fmt.Sprintf("must be between 1 and %d", MaxTierSupply)
		}
	}
	if combined != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, combined, "invalid tier configuration").WithDetails(details)
	}
	if enabled == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "enable at least one tier").
			WithDetails(map[string]string{"tiers": "enable at least one tier"})
	}
	return nil
}

func structErrors(err error, prefix string) error {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := map[string]string{}
	for _, fe := range errs {
		details[prefix+fieldPath(fe)] = validationMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the struct name from the validator namespace so nested
// fields read like "tags[2]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Bool {
			return "must be confirmed"
		}
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}

func mergeDetails(dst map[string]string, err error) {
	perr := pkgerrors.As(err)
	if perr == nil {
		return
	}
	if src, ok := perr.Details().(map[string]string); ok {
		for k, v := range src {
			dst[k] = v
		}
	}
}
