// Package testutil provides fakes, builders and sample schemas for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second
)

// Sample schema files in the object-columns form
const (
	OrdersJSON = `{
  "table_name": "orders",
  "description": "Customer orders placed through the web store",
  "business_context": "One row per checkout; revenue reporting sums amount",
  "columns": {
    "order_id": {"type": "INTEGER", "constraints": "PRIMARY KEY", "description": "Unique order id"},
    "customer_id": {"type": "INTEGER", "constraints": ["NOT NULL", "FOREIGN KEY"], "description": "Buyer"},
    "order_date": {"type": "DATE", "description": "Day the order was placed"},
    "amount": {"type": "DECIMAL(10,2)", "description": "Order total in dollars"}
  },
  "relationships": [
    {"type": "many_to_one", "related_table": "customers", "foreign_key": "customer_id", "description": "Each order belongs to one customer"}
  ]
}`

	CustomersJSON = `{
  "table_name": "customers",
  "description": "People who have created an account",
  "columns": [
    {"name": "customer_id", "type": "INTEGER", "constraints": ["PRIMARY KEY"]},
    {"name": "email", "type": "VARCHAR", "description": "Login email"},
    {"name": "signup_date", "type": "DATE", "description": "Account creation date"}
  ]
}`

	ProductsJSON = `{
  "table_name": "products",
  "description": "Catalog of items for sale",
  "columns": {
    "product_id": {"type": "INTEGER", "constraints": "PRIMARY KEY"},
    "name": {"type": "VARCHAR", "description": "Display name"},
    "price": {"type": "DECIMAL(10,2)", "description": "List price"}
  },
  "relationships": ["order_items.product_id references products.product_id"]
}`
)

// SampleSchemas maps file names to the sample schema files
func SampleSchemas() map[string]string {
	return map[string]string{
		"orders.json":    OrdersJSON,
		"customers.json": CustomersJSON,
		"products.json":  ProductsJSON,
	}
}
