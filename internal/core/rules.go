// internal/core/rules.go
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// FieldRules is the set of constraints derived for one field.
type FieldRules struct {
	Field    *domain.Field
	Required bool
	Tags     []string
	Options  []string
	Unique   bool
}

// TagString joins the validator tags, custom field tags included.
func (r FieldRules) TagString() string {
	return strings.Join(r.Tags, ",")
}

// BuildRules derives per-field constraints from the model's field metadata.
// Updates treat every field as optional.
func BuildRules(model *domain.Model, isUpdate bool) []FieldRules {
	rules := make([]FieldRules, 0, len(model.Fields))
	for i := range model.Fields {
		f := &model.Fields[i]
		r := FieldRules{
			Field:    f,
			Required: f.IsRequired && !isUpdate,
			Unique:   f.IsUnique,
		}

		ft := f.Type.Normalize()
		switch {
		case ft == domain.TypeString, ft == domain.TypeSlug:
			r.Tags = append(r.Tags, "is_string", "max=255")
		case ft == domain.TypeText, ft == domain.TypeRichText, ft == domain.TypeMarkdown:
			r.Tags = append(r.Tags, "is_string")
		case ft == domain.TypeEmail:
			r.Tags = append(r.Tags, "is_string", "email")
		case ft == domain.TypeURL:
			r.Tags = append(r.Tags, "is_string", "url")
		case ft == domain.TypePassword:
			r.Tags = append(r.Tags, "is_string", "max=72")
		case ft.IsInteger():
			r.Tags = append(r.Tags, "integer_value")
		case ft.IsFloat():
			r.Tags = append(r.Tags, "numeric_value")
		case ft.IsBoolean():
			r.Tags = append(r.Tags, "boolean_value")
		case ft == domain.TypeDate, ft == domain.TypeDateTime, ft == domain.TypeTimestamp:
			r.Tags = append(r.Tags, "date_value")
		case ft == domain.TypeTime:
			r.Tags = append(r.Tags, "time_value")
		case ft.IsJSON():
			r.Tags = append(r.Tags, "json_value")
		case ft.IsEnum():
			r.Options = f.Options
		case ft == domain.TypeUUID:
			r.Tags = append(r.Tags, "is_string", "uuid")
		}

		if extra := strings.TrimSpace(f.ValidationRules); extra != "" {
			r.Tags = append(r.Tags, extra)
		}
		rules = append(rules, r)
	}
	return rules
}

// UniquenessChecker looks for an existing row holding value in column.
type UniquenessChecker interface {
	ValueExists(ctx context.Context, table, column string, value any, excludeID int64) (bool, error)
}

// Validator runs the derived constraints against request input.
type Validator struct {
	validate *validator.Validate
	unique   UniquenessChecker
}

// NewValidator registers the engine's custom checks on a fresh validator instance.
func NewValidator(unique UniquenessChecker) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("is_string", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String
	})
	_ = v.RegisterValidation("integer_value", func(fl validator.FieldLevel) bool {
		return isIntegerValue(fl.Field().Interface())
	})
	_ = v.RegisterValidation("numeric_value", func(fl validator.FieldLevel) bool {
		return isNumericValue(fl.Field().Interface())
	})
	_ = v.RegisterValidation("boolean_value", func(fl validator.FieldLevel) bool {
		return isBooleanValue(fl.Field().Interface())
	})
	_ = v.RegisterValidation("date_value", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		_, ok := ParseDate(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("time_value", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		_, err := time.Parse(TimeLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("json_value", func(fl validator.FieldLevel) bool {
		k := fl.Field().Kind()
		return k == reflect.Map || k == reflect.Slice
	})
	return &Validator{validate: v, unique: unique}
}

// Validate checks one row of input against the model. It returns per-field
// messages; the error is reserved for storage failures during uniqueness checks.
func (v *Validator) Validate(ctx context.Context, model *domain.Model, input map[string]any, isUpdate bool, recordID int64) (map[string][]string, error) {
	errs := make(map[string][]string)
	for _, rule := range BuildRules(model, isUpdate) {
		name := rule.Field.Name
		raw, present := input[name]

		if !present || isBlank(raw) {
			if rule.Required {
				errs[name] = append(errs[name], message("required", name, ""))
			}
			continue
		}

		if msg := v.runTags(rule, raw); msg != "" {
			errs[name] = append(errs[name], msg)
			continue
		}

		if len(rule.Options) > 0 && !inOptions(raw, rule.Options) {
			errs[name] = append(errs[name], message("in", name, ""))
			continue
		}

		if rule.Unique && v.unique != nil {
			exists, err := v.unique.ValueExists(ctx, model.TableName, name, Cast(raw, rule.Field).Storage(), recordID)
			if err != nil {
				return nil, err
			}
			if exists {
				errs[name] = append(errs[name], message("unique", name, ""))
			}
		}
	}
	return errs, nil
}

// ValidateBatch validates rows as creates and also rejects duplicate values of
// unique fields within the batch. Keys are prefixed with "data.<index>.".
func (v *Validator) ValidateBatch(ctx context.Context, model *domain.Model, rows []map[string]any) (map[string][]string, error) {
	all := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for i, row := range rows {
		errs, err := v.Validate(ctx, model, row, false, 0)
		if err != nil {
			return nil, err
		}
		for j := range model.Fields {
			f := &model.Fields[j]
			if !f.IsUnique {
				continue
			}
			raw, ok := row[f.Name]
			if !ok || isBlank(raw) || len(errs[f.Name]) > 0 {
				continue
			}
			key := fmt.Sprint(Cast(raw, f).Storage())
			if seen[f.Name] == nil {
				seen[f.Name] = make(map[string]bool)
			}
			if seen[f.Name][key] {
				errs[f.Name] = append(errs[f.Name], message("unique", f.Name, ""))
			}
			seen[f.Name][key] = true
		}
		for field, msgs := range errs {
			all[fmt.Sprintf("data.%d.%s", i, field)] = msgs
		}
	}
	return all, nil
}

// runTags returns the message for the first failing tag, or "".
func (v *Validator) runTags(rule FieldRules, raw any) (msg string) {
	tags := rule.TagString()
	if tags == "" {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			customLog.Warnf("Core: invalid validation rules %q on field '%s': %v", tags, rule.Field.Name, r)
			msg = ""
		}
	}()

	err := v.validate.Var(raw, tags)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return message(verrs[0].Tag(), rule.Field.Name, verrs[0].Param())
	}
	return message("", rule.Field.Name, "")
}

func message(tag, field, param string) string {
	attr := strings.ReplaceAll(field, "_", " ")
	switch tag {
	case "required":
		return fmt.Sprintf("The %s field is required.", attr)
	case "is_string":
		return fmt.Sprintf("The %s must be a string.", attr)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", attr, param)
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", attr, param)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", attr)
	case "url":
		return fmt.Sprintf("The %s format is invalid.", attr)
	case "uuid":
		return fmt.Sprintf("The %s must be a valid UUID.", attr)
	case "integer_value":
		return fmt.Sprintf("The %s must be an integer.", attr)
	case "numeric_value":
		return fmt.Sprintf("The %s must be a number.", attr)
	case "boolean_value":
		return fmt.Sprintf("The %s field must be true or false.", attr)
	case "date_value":
		return fmt.Sprintf("The %s is not a valid date.", attr)
	case "time_value":
		return fmt.Sprintf("The %s does not match the format H:i:s.", attr)
	case "json_value":
		return fmt.Sprintf("The %s must be an array.", attr)
	case "in":
		return fmt.Sprintf("The selected %s is invalid.", attr)
	case "unique":
		return fmt.Sprintf("The %s has already been taken.", attr)
	}
	return fmt.Sprintf("The %s is invalid.", attr)
}

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func isIntegerValue(raw any) bool {
	switch v := raw.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case json.Number:
		_, err := v.Int64()
		return err == nil
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return err == nil
	}
	return false
}

func isNumericValue(raw any) bool {
	switch v := raw.(type) {
	case int, int32, int64, float32:
		return true
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	case json.Number:
		_, err := v.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil
	}
	return false
}

func isBooleanValue(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return true
	case int:
		return v == 0 || v == 1
	case int64:
		return v == 0 || v == 1
	case float64:
		return v == 0 || v == 1
	case json.Number:
		return v.String() == "0" || v.String() == "1"
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "1", "true", "false":
			return true
		}
	}
	return false
}

func inOptions(raw any, options []string) bool {
	s := fmt.Sprint(raw)
	if f, ok := raw.(float64); ok && f == math.Trunc(f) {
		s = strconv.FormatInt(int64(f), 10)
	}
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
