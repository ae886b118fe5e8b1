package patient

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

const sqlFlavor = sqlbuilder.PostgreSQL

const patientTable = "patients"

var patientColumns = []string{
	"id", "mrn", "national_id", "name", "birth_date", "gender", "photo_url",
	"is_deceased", "deceased_date", "status", "merged_to_id",
	"address_info", "contact_info", "family_info", "clinical_info", "payer_info",
	"audit_info", "created_at", "updated_at",
}

// SearchQuery is a built, not yet executed, patient search.
type SearchQuery struct {
	SQL  string
	Args []interface{}
}

// visibleStatuses are the only statuses search may return.
var visibleStatuses = []interface{}{string(StatusActive), string(StatusMerged)}

// BuildSearchQuery composes the filter for params. Provided filters are
// ANDed together with the visibility clause. It returns false when no filter
// was supplied; the caller must then return an empty result instead of
// querying.
func BuildSearchQuery(params SearchParams) (SearchQuery, bool) {
	if params.IsEmpty() {
		return SearchQuery{}, false
	}

	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(patientColumns...).From(patientTable)

	if params.Name != "" {
		sb.Where(fmt.Sprintf("name ILIKE %s", sb.Var(containsPattern(params.Name))))
	}
	if params.MRN != "" {
		sb.Where(fmt.Sprintf("mrn ILIKE %s", sb.Var(containsPattern(params.MRN))))
	}
	if params.NationalID != "" {
		sb.Where(sb.Equal("national_id", params.NationalID))
	}
	if params.Phone != "" {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(contact_info->'phones') AS phone(value) WHERE phone.value ILIKE %s)",
			sb.Var(containsPattern(params.Phone)),
		))
	}

	sb.Where(sb.In("status", visibleStatuses...))
	sb.OrderBy("created_at").Desc()

	if params.Limit > 0 {
		sb.Limit(params.Limit)
	}
	if params.Offset > 0 {
		sb.Offset(params.Offset)
	}

	query, args := sb.Build()
	return SearchQuery{SQL: query, Args: args}, true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user input into a substring LIKE pattern with the
// input's own wildcard characters escaped.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
