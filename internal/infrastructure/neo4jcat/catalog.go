// Package neo4jcat implements the catalog store on Neo4j, for deployments
// that keep the vendor catalog in the graph database rather than Postgres.
package neo4jcat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mealmatch/backend/internal/domain"
)

// Config holds the Neo4j connection configuration
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Catalog is the Neo4j-backed catalog store
type Catalog struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewCatalog connects to Neo4j and verifies connectivity
func NewCatalog(config Config) (*Catalog, error) {
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &Catalog{driver: driver, database: config.Database}, nil
}

// Close closes the underlying driver
func (c *Catalog) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// GetVendorCatalogVersion reads the vendor node's catalog version counter
func (c *Catalog) GetVendorCatalogVersion(ctx context.Context, vendorID string) (int64, error) {
	const query = `
		MATCH (v:Vendor {id: $vendorId})
		RETURN v.catalog_version AS version
	`

	records, err := c.read(ctx, query, map[string]interface{}{"vendorId": vendorID})
	if err != nil {
		return 0, fmt.Errorf("%w: catalog version query: %v", domain.ErrStoreUnavailable, err)
	}
	if len(records) == 0 {
		return 0, domain.ErrVendorNotFound
	}

	version, _ := records[0]["version"].(int64)
	return version, nil
}

// QueryActiveProducts fetches the vendor's active products matching the
// filter, newest first. Allergen exclusion and tag containment are expressed
// as list predicates; the tag clause is only added when the filter carries
// required tags.
func (c *Catalog) QueryActiveProducts(ctx context.Context, vendorID string, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `
		MATCH (v:Vendor {id: $vendorId})-[:SELLS]->(p:Product)
		WHERE p.status = $status
		  AND none(a IN coalesce(p.allergens, []) WHERE a IN $avoid)
	`
	params := map[string]interface{}{
		"vendorId": vendorID,
		"status":   domain.ProductStatusActive,
		"avoid":    toInterfaceSlice(filter.ExcludeAllergens),
	}

	if len(filter.RequireTags) > 0 {
		query += `  AND all(t IN $required WHERE t IN coalesce(p.dietary_tags, []))
		`
		params["required"] = toInterfaceSlice(filter.RequireTags)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	params["limit"] = limit

	query += `
		RETURN p.id AS id, p.name AS name, p.status AS status,
		       coalesce(p.allergens, []) AS allergens,
		       coalesce(p.dietary_tags, []) AS dietary_tags,
		       p.nutrition AS nutrition,
		       p.updated_at AS updated_at
		ORDER BY p.updated_at DESC
		LIMIT $limit
	`

	records, err := c.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: product query: %v", domain.ErrStoreUnavailable, err)
	}

	products := make([]domain.Product, 0, len(records))
	for _, record := range records {
		product, err := recordToProduct(vendorID, record)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, nil
}

// read runs a Cypher query in a read session and collects the records as maps
func (c *Catalog) read(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	for result.Next(ctx) {
		records = append(records, result.Record().AsMap())
	}
	return records, result.Err()
}

func recordToProduct(vendorID string, record map[string]interface{}) (domain.Product, error) {
	product := domain.Product{VendorID: vendorID}

	product.ID, _ = record["id"].(string)
	product.Name, _ = record["name"].(string)
	product.Status, _ = record["status"].(string)
	product.Allergens = toStringSlice(record["allergens"])
	product.DietaryTags = toStringSlice(record["dietary_tags"])

	// Nutrition lives on the node as a JSON string property
	if raw, ok := record["nutrition"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &product.Nutrition); err != nil {
			return domain.Product{}, fmt.Errorf("decode nutrition for product %s: %w", product.ID, err)
		}
	}

	switch ts := record["updated_at"].(type) {
	case time.Time:
		product.UpdatedAt = ts
	case int64:
		product.UpdatedAt = time.UnixMilli(ts)
	}

	return product, nil
}

func toInterfaceSlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toStringSlice(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
