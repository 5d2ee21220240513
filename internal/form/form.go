// Package form holds the static application form: its ordered sections,
// field rules, option lists and document slots.
package form

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"admissions-portal/internal/uploads"
)

//go:embed application.yaml
var applicationYAML []byte

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .()-]{6,18}[0-9]$`)

const defaultInvalidMessage = "Valeur invalide"

// Field is one answer of the form.
type Field struct {
	Name      string            `yaml:"name"`
	Label     string            `yaml:"label"`
	Rule      string            `yaml:"rule"`
	Message   string            `yaml:"message"`
	Messages  map[string]string `yaml:"messages"`
	Options   string            `yaml:"options"`
	Multiline bool              `yaml:"multiline"`
}

// Required reports whether the rule includes "required".
func (f Field) Required() bool {
	for _, tag := range strings.Split(f.Rule, ",") {
		if tag == "required" {
			return true
		}
	}
	return false
}

// Section is one ordered page of the form.
type Section struct {
	Title     string  `yaml:"title"`
	Fields    []Field `yaml:"fields"`
	Documents bool    `yaml:"documents"`
}

// Option is one allowed value of a choice field.
type Option struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
	Group string `yaml:"group"`
}

// Text returns the label, falling back to the value.
func (o Option) Text() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Value
}

// Definition is a parsed form.
type Definition struct {
	Sections []Section           `yaml:"sections"`
	Slots    []uploads.Slot      `yaml:"slots"`
	Options  map[string][]Option `yaml:"options"`

	validate *validator.Validate
	fields   map[string]fieldRef
}

type fieldRef struct {
	section int
	field   Field
}

// Load parses and checks a form definition.
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse form definition: %w", err)
	}
	if err := def.init(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Default returns the embedded application form.
func Default() *Definition {
	def, err := Load(applicationYAML)
	if err != nil {
		panic(err)
	}
	return def
}

func (d *Definition) init() error {
	if len(d.Sections) == 0 {
		return errors.New("form definition has no sections")
	}
	d.validate = validator.New()
	if err := d.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register phone rule: %w", err)
	}

	d.fields = make(map[string]fieldRef)
	for i, sec := range d.Sections {
		for _, f := range sec.Fields {
			if f.Name == "" {
				return fmt.Errorf("section %d: field without name", i+1)
			}
			if _, dup := d.fields[f.Name]; dup {
				return fmt.Errorf("field %s declared twice", f.Name)
			}
			if f.Options != "" {
				if _, ok := d.Options[f.Options]; !ok {
					return fmt.Errorf("field %s: unknown option list %s", f.Name, f.Options)
				}
			}
			d.fields[f.Name] = fieldRef{section: i + 1, field: f}
		}
	}
	seen := make(map[string]struct{})
	for _, s := range d.Slots {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("slot %s declared twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// SectionCount returns N, the number of sections.
func (d *Definition) SectionCount() int { return len(d.Sections) }

// Section returns the section at a 1-based index.
func (d *Definition) Section(index int) (Section, bool) {
	if index < 1 || index > len(d.Sections) {
		return Section{}, false
	}
	return d.Sections[index-1], true
}

// Field looks up a field by name.
func (d *Definition) Field(name string) (Field, bool) {
	ref, ok := d.fields[name]
	return ref.field, ok
}

// SectionOf returns the 1-based index of the section owning field.
func (d *Definition) SectionOf(name string) (int, bool) {
	ref, ok := d.fields[name]
	return ref.section, ok
}

// FieldNames returns every field name in form order.
func (d *Definition) FieldNames() []string {
	var out []string
	for _, sec := range d.Sections {
		for _, f := range sec.Fields {
			out = append(out, f.Name)
		}
	}
	return out
}

// OptionsFor returns the allowed values of a choice field, nil for free text.
func (d *Definition) OptionsFor(name string) []Option {
	ref, ok := d.fields[name]
	if !ok || ref.field.Options == "" {
		return nil
	}
	return d.Options[ref.field.Options]
}

// Slot looks up a document slot by name.
func (d *Definition) Slot(name string) (uploads.Slot, bool) {
	for _, s := range d.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return uploads.Slot{}, false
}

// ValidateField checks one value against its field rules and returns the
// message to show when it fails.
func (d *Definition) ValidateField(name, value string) (string, bool) {
	ref, ok := d.fields[name]
	if !ok {
		return defaultInvalidMessage, false
	}
	f := ref.field
	value = strings.TrimSpace(value)

	if f.Rule != "" {
		if err := d.validate.Var(value, f.Rule); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return f.messageFor(verrs[0].Tag()), false
			}
			return f.messageFor(""), false
		}
	}
	if f.Options != "" && value != "" && !containsOption(d.Options[f.Options], value) {
		return f.messageFor("oneof"), false
	}
	return "", true
}

// ValidateAnswers checks every field of the form and returns field→message
// for the failures. Unknown keys are reported as well.
func (d *Definition) ValidateAnswers(answers map[string]string) map[string]string {
	errs := make(map[string]string)
	for name := range d.fields {
		if msg, ok := d.ValidateField(name, answers[name]); !ok {
			errs[name] = msg
		}
	}
	for name := range answers {
		if _, ok := d.fields[name]; !ok {
			errs[name] = "Champ inconnu"
		}
	}
	return errs
}

func (f Field) messageFor(tag string) string {
	if msg, ok := f.Messages[tag]; ok && msg != "" {
		return msg
	}
	if f.Message != "" {
		return f.Message
	}
	return defaultInvalidMessage
}

func containsOption(opts []Option, value string) bool {
	for _, o := range opts {
		if o.Value == value {
			return true
		}
	}
	return false
}
