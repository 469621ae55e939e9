// Package taxonomy loads the manipulation categories and their grouped
// subcategories offered to annotators.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"annotator/internal/domain"
	"annotator/internal/overlay"
)

//go:embed default.yaml
var defaultYAML []byte

type group struct {
	Header  string   `yaml:"header"`
	Options []string `yaml:"options"`
}

// colorPattern admits hex colours and CSS colour keywords, the only values
// safe to place in a style attribute.
var colorPattern = regexp.MustCompile(`^(#[0-9A-Fa-f]{3}|#[0-9A-Fa-f]{4}|#[0-9A-Fa-f]{6}|#[0-9A-Fa-f]{8}|[A-Za-z]+)$`)

type category struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Color  string  `yaml:"color"`
	Groups []group `yaml:"groups"`
}

func (c category) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required, validation.Length(1, 16)),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Color, validation.Match(colorPattern).Error("must be a hex colour or a CSS colour name")),
		validation.Field(&c.Groups, validation.Required),
	)
}

type file struct {
	Categories []category `yaml:"categories"`
}

// Taxonomy is an immutable, ordered set of categories.
type Taxonomy struct {
	categories []category
	byID       map[string]int
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return t
}

// Load reads the taxonomy at path, or the built-in one when path is empty.
func Load(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML taxonomy.
func Parse(data []byte) (*Taxonomy, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	t := &Taxonomy{byID: make(map[string]int, len(f.Categories))}
	for i, c := range f.Categories {
		c.ID = strings.TrimSpace(c.ID)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
		if _, dup := t.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", c.ID)
		}
		t.byID[c.ID] = len(t.categories)
		t.categories = append(t.categories, c)
	}
	return t, nil
}

// Categories lists the categories in file order.
func (t *Taxonomy) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(t.categories))
	for _, c := range t.categories {
		out = append(out, domain.Category{ID: c.ID, Name: c.Name, Color: c.Color})
	}
	return out
}

// Subcategories returns the ordered groups of a category.
func (t *Taxonomy) Subcategories(categoryID string) ([]domain.SubcategoryGroup, bool) {
	i, ok := t.byID[strings.TrimSpace(categoryID)]
	if !ok {
		return nil, false
	}
	groups := make([]domain.SubcategoryGroup, 0, len(t.categories[i].Groups))
	for _, g := range t.categories[i].Groups {
		groups = append(groups, domain.SubcategoryGroup{
			Header:  g.Header,
			Options: append([]string(nil), g.Options...),
		})
	}
	return groups, true
}

// Valid reports whether categoryID names a known category.
func (t *Taxonomy) Valid(categoryID string) bool {
	_, ok := t.byID[strings.TrimSpace(categoryID)]
	return ok
}

// Palette builds highlight colours from the category colours.
func (t *Taxonomy) Palette() overlay.Palette {
	colors := make(map[string]string, len(t.categories))
	for _, c := range t.categories {
		colors[c.ID] = c.Color
	}
	return overlay.NewPalette(colors, overlay.DefaultColor)
}

// Describe renders the taxonomy as an indented plain-text list, one
// category per block.
func (t *Taxonomy) Describe() string {
	var b strings.Builder
	for i, c := range t.categories {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Category %s: %s\n", c.ID, strings.TrimSpace(strings.TrimPrefix(c.Name, c.ID+".")))
		for _, g := range c.Groups {
			fmt.Fprintf(&b, "%s\n", g.Header)
			for _, opt := range g.Options {
				fmt.Fprintf(&b, "    - %s\n", opt)
			}
		}
	}
	return b.String()
}
