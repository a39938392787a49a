package shapes

import (
	"sort"
	"strings"
)

const (
	corporateShape = `Corporate knowledge graph shape:
- Employees: corp:name, corp:firstName, corp:worksFor (Department)
- Departments: corp:name, corp:hasManager (Employee)
- Projects: corp:name, corp:startDate, corp:endDate, corp:hasTeamMember (Employee)
- Locations: corp:name, corp:address`

	dbpediaShape = `DBpedia shape:
- Cities: dbo:populationTotal, dbo:country, dbo:location
- Persons: dbo:birthDate, dbo:birthPlace, dbo:deathDate
- Countries: dbo:capital, dbo:officialLanguage, dbo:populationTotal`

	genericShape = "Generic knowledge graph with entities and relationships."
)

// Generate describes the graph the question runs against. Resolved entities
// take precedence over the static per-dataset templates.
func Generate(datasetID string, entities map[string]string) string {
	if len(entities) > 0 {
		names := make([]string, 0, len(entities))
		for n := range entities {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, n := range names {
			parts = append(parts, n+"="+entities[n])
		}
		return "Shape generated for: " + strings.Join(parts, ", ")
	}
	id := strings.ToLower(datasetID)
	switch {
	case strings.Contains(id, "corporate"):
		return corporateShape
	case strings.Contains(id, "dbpedia"):
		return dbpediaShape
	default:
		return genericShape
	}
}
