package reconciliation

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// defaultAliases maps the codes operators actually type (English and French)
// onto the reporting taxonomy.
var defaultAliases = map[models.ExpenseCategory][]string{
	models.CategoryFeed:        {"aliment", "aliments", "provende", "mais", "son"},
	models.CategoryChicks:      {"chick", "poussin", "poussins", "poulette", "poulettes", "stock"},
	models.CategoryVeterinary:  {"vet", "vaccin", "vaccins", "medicament", "medicaments", "medication", "vaccine"},
	models.CategoryLabor:       {"salaire", "salaires", "main_d_oeuvre", "wages", "salary"},
	models.CategoryEnergy:      {"electricite", "electricity", "carburant", "fuel", "gaz"},
	models.CategoryWater:       {"eau"},
	models.CategoryTransport:   {"livraison", "delivery"},
	models.CategoryPackaging:   {"emballage", "alveole", "alveoles", "carton", "cartons", "trays"},
	models.CategoryEquipment:   {"materiel", "equipement", "mangeoire", "abreuvoir"},
	models.CategoryMaintenance: {"entretien", "reparation", "repair", "nettoyage", "cleaning"},
	models.CategoryRent:        {"loyer", "location"},
	models.CategoryOther:       {"divers", "autre", "autres", "misc"},
}

// Classifier maps raw expense category codes to the fixed taxonomy.
// It is read-only after construction and safe for concurrent use.
type Classifier struct {
	lookup map[string]models.ExpenseCategory
}

// NewClassifier builds a classifier from the default aliases plus the extra ones.
func NewClassifier(extra map[models.ExpenseCategory][]string) *Classifier {
	c := &Classifier{lookup: make(map[string]models.ExpenseCategory)}
	for _, category := range models.ExpenseCategories {
		c.lookup[string(category)] = category
	}
	for category, aliases := range defaultAliases {
		c.add(category, aliases)
	}
	for category, aliases := range extra {
		c.add(category, aliases)
	}
	return c
}

// LoadClassifier reads extra aliases from a YAML file shaped as
// `category: [alias, ...]`. An empty path yields the default classifier.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return NewClassifier(nil), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category aliases %s: %w", path, err)
	}

	var extra map[models.ExpenseCategory][]string
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("parse category aliases %s: %w", path, err)
	}

	for category := range extra {
		if !slices.Contains(models.ExpenseCategories, category) {
			return nil, fmt.Errorf("category aliases %s: unknown category %q", path, category)
		}
	}
	return NewClassifier(extra), nil
}

func (c *Classifier) add(category models.ExpenseCategory, aliases []string) {
	for _, alias := range aliases {
		c.lookup[normalizeCode(alias)] = category
	}
}

// Classify returns the bucket for a raw code. Unknown and empty codes fall into
// "other"; known is false for those so callers can flag the gap.
func (c *Classifier) Classify(raw string) (category models.ExpenseCategory, known bool) {
	code := normalizeCode(raw)
	if code == "" {
		return models.CategoryOther, false
	}
	if category, ok := c.lookup[code]; ok {
		return category, true
	}
	return models.CategoryOther, false
}

// Category is Classify without the known flag.
func (c *Classifier) Category(raw string) models.ExpenseCategory {
	category, _ := c.Classify(raw)
	return category
}

var accentReplacer = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "à", "a", "â", "a", "ç", "c", "ô", "o", "î", "i", "ï", "i", "û", "u", "ù", "u",
	"'", "_", "’", "_", "-", "_", " ", "_",
)

func normalizeCode(raw string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
}
