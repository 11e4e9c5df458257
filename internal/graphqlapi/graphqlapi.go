// Package graphqlapi exposes a read-only GraphQL introspection endpoint over
// the Coordination Store, grounded on the handler/schema split the teacher
// uses for its own GraphQL API. Unlike the teacher's schema this carries no
// Mutation or Subscription type at all: every field here only ever reads,
// and the endpoint itself is off by default (internal/config.EnableGraphQL),
// matching the ambient, opt-in nature of this addition.
package graphqlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/cardmesh/internal/model"
)

// Reader is the subset of internal/store.Store the schema's resolvers
// need. It deliberately binds to the cached accessors: this endpoint is a
// diagnostic/introspection surface, not a path any 2PC decision depends
// on, so trading a little freshness for fewer Redis round-trips is safe.
type Reader interface {
	GetStockCached(ctx context.Context) (model.GlobalStock, error)
	GetInventoryCached(ctx context.Context, playerID string) (*model.Inventory, error)
}

// Handler is an HTTP handler serving a single read-only GraphQL schema.
type Handler struct {
	schema graphql.Schema
}

// NewHandler builds the schema against reader and wraps it as an HTTP
// handler.
func NewHandler(reader Reader) (*Handler, error) {
	schema, err := buildSchema(reader)
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}
	return &Handler{schema: schema}, nil
}

func buildSchema(reader Reader) (graphql.Schema, error) {
	cardType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Card",
		Fields: graphql.Fields{
			"cardId":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"kind":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"skin":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"rarity":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"displayName": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	inventoryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Inventory",
		Fields: graphql.Fields{
			"playerId": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"cards":    &graphql.Field{Type: graphql.NewList(cardType)},
			"cardCount": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					inv, _ := p.Source.(*model.Inventory)
					if inv == nil {
						return 0, nil
					}
					return len(inv.Cards), nil
				},
			},
			"version": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	stockType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stock",
		Fields: graphql.Fields{
			"packsRemaining": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"stock": &graphql.Field{
				Type: stockType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return reader.GetStockCached(p.Context)
				},
			},
			"inventory": &graphql.Field{
				Type: inventoryType,
				Args: graphql.FieldConfigArgument{
					"playerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					playerID, _ := p.Args["playerId"].(string)
					return reader.GetInventoryCached(p.Context, playerID)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// request is the standard GraphQL-over-HTTP request envelope.
type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// ServeHTTP executes a single query. Only POST is accepted; there is no
// mutation type to protect, but the read-only contract is still easier to
// reason about with one verb.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "graphql endpoint only accepts POST", http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
