package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat":             &graphql.Field{Type: graphql.Float},
			"lon":             &graphql.Field{Type: graphql.Float},
			"accuracy_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	zoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ServiceZone",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"display_name": &graphql.Field{Type: graphql.String},
			"center":       &graphql.Field{Type: geoPointType},
			"radius_km":    &graphql.Field{Type: graphql.Float},
			"is_active":    &graphql.Field{Type: graphql.Boolean},
		},
	})

	candidateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneCandidate",
		Fields: graphql.Fields{
			"zone":        &graphql.Field{Type: zoneType},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	matchResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MatchResult",
		Fields: graphql.Fields{
			"matched":         &graphql.Field{Type: graphql.Boolean},
			"zone":            &graphql.Field{Type: zoneType},
			"distance_km":     &graphql.Field{Type: graphql.Float},
			"candidates":      &graphql.Field{Type: graphql.NewList(candidateType)},
			"source":          &graphql.Field{Type: graphql.String},
			"point":           &graphql.Field{Type: geoPointType},
			"display_address": &graphql.Field{Type: graphql.String},
			"nearest":         &graphql.Field{Type: candidateType},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolutionState",
		Fields: graphql.Fields{
			"cache_key":    &graphql.Field{Type: graphql.String},
			"state":        &graphql.Field{Type: graphql.String},
			"last_outcome": &graphql.Field{Type: graphql.String},
			"permission":   &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"zones": &graphql.Field{
				Type:        graphql.NewList(zoneType),
				Description: "Active service zones",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Zones == nil {
						return nil, errors.New("zone catalog not available")
					}
					return deps.Zones.ListActive(p.Context)
				},
			},
			"zone": &graphql.Field{
				Type:        zoneType,
				Description: "Get a zone by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Zones == nil {
						return nil, errors.New("zone catalog not available")
					}
					return deps.Zones.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"resolutionState": &graphql.Field{
				Type:        stateType,
				Description: "Session and permission state for a cache key",
				Args: graphql.FieldConfigArgument{
					"cache_key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["cache_key"].(string)
					resp := stateResponse(deps.Resolver, key)
					if perm, err := deps.Resolver.Permission(p.Context, key); err == nil {
						resp.Permission = perm
					}
					return resp, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"resolveManualAddress": &graphql.Field{
				Type:        matchResultType,
				Description: "Geocode an address and match it against the active zones",
				Args: graphql.FieldConfigArgument{
					"cache_key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"query":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["cache_key"].(string)
					if !validCacheKey(key) {
						return nil, errors.New("invalid cache_key")
					}
					zs, err := zonesFor(p.Context, deps, nil)
					if err != nil {
						return nil, err
					}
					return deps.Resolver.ResolveManualAddress(p.Context, p.Args["query"].(string), zs, key)
				},
			},
			"resetResolution": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Forget the cached point and cancel in-flight work for a cache key",
				Args: graphql.FieldConfigArgument{
					"cache_key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					deps.Resolver.Reset(p.Args["cache_key"].(string))
					return true, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(result)
	}
}
