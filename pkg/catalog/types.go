package catalog

// Query is the structured "find" request sent to the catalog query service
type Query struct {
	QueryType string    `json:"query_type"`
	Query     FindQuery `json:"query"`
}

// FindQuery selects records from a catalog by identifier membership,
// returning only the projected columns
type FindQuery struct {
	Catalog    string         `json:"catalog"`
	Filter     Filter         `json:"filter"`
	Projection map[string]int `json:"projection"`
}

// Filter restricts a find query to a set of source identifiers
type Filter struct {
	ID IDMembership `json:"_id"`
}

// IDMembership is an "identifier is in this page" predicate
type IDMembership struct {
	In []int64 `json:"$in"`
}

// NewFindQuery builds a find query for one page of identifiers
func NewFindQuery(catalogName string, ids []int64, projection map[string]int) Query {
	return Query{
		QueryType: "find",
		Query: FindQuery{
			Catalog:    catalogName,
			Filter:     Filter{ID: IDMembership{In: ids}},
			Projection: projection,
		},
	}
}

// Record is one row of the service's data payload
type Record map[string]interface{}

// Response is the service's reply to a query
type Response struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Data    []Record `json:"data"`
}

// OK reports whether the response carries usable data
func (r *Response) OK() bool {
	return r != nil && r.Status == "success" && r.Data != nil
}
