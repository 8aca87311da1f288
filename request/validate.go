package request

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var (
	errPositive = errors.New("must be a positive integer")
	errDate     = errors.New("must be a date (2006-01-02) or an RFC 3339 timestamp")
)

// Validate is the strict counterpart of Normalize. It reports every
// parameter Normalize would drop or replace with a default, keyed by name.
// The result is nil or a validation.Errors.
func (n *Normalizer) Validate(values url.Values) error {
	errs := validation.Errors{}

	for _, f := range n.fields {
		raw := strings.TrimSpace(values.Get(f.Key))
		if raw == "" {
			continue
		}
		errs[f.Key] = validation.Validate(raw, n.rules(f)...)
	}

	if sort := strings.TrimSpace(values.Get(ParamSort)); sort != "" {
		errs[ParamSort] = validation.Validate(sort, validation.In(toAny(n.sortable())...))
	}
	if dir := strings.TrimSpace(values.Get(ParamDirection)); dir != "" {
		errs[ParamDirection] = validation.Validate(strings.ToLower(dir), validation.In("asc", "desc"))
	}
	if page := strings.TrimSpace(values.Get(ParamPage)); page != "" {
		errs[ParamPage] = validation.Validate(page, is.Digit, validation.By(positive))
	}
	if size := strings.TrimSpace(values.Get(ParamPerPage)); size != "" {
		allowed := make([]any, 0, len(n.paging.Allowed))
		for _, a := range n.paging.Allowed {
			allowed = append(allowed, strconv.Itoa(a))
		}
		errs[ParamPerPage] = validation.Validate(size, is.Digit, validation.In(allowed...))
	}

	return errs.Filter()
}

func (n *Normalizer) rules(f Field) []validation.Rule {
	switch f.Kind {
	case KindInt:
		return []validation.Rule{is.Digit, validation.By(positive)}
	case KindBool:
		return []validation.Rule{validation.By(func(v any) error {
			_, err := strconv.ParseBool(v.(string))
			return err
		})}
	case KindTime:
		return []validation.Rule{validation.By(func(v any) error {
			if _, ok := parseTime(v.(string), false, n.loc); !ok {
				return errDate
			}
			return nil
		})}
	case KindEnum:
		return []validation.Rule{validation.By(func(v any) error {
			return validation.Validate(strings.ToLower(v.(string)), validation.In(toAny(f.Enum)...))
		})}
	default:
		return []validation.Rule{validation.Length(0, 200)}
	}
}

func (n *Normalizer) sortable() []string {
	return append(append([]string(nil), n.sorting.Fields...), n.sorting.Computed...)
}

func positive(v any) error {
	id, err := strconv.ParseInt(v.(string), 10, 64)
	if err != nil || id <= 0 {
		return errPositive
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
