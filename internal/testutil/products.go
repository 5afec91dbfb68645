// Package testutil holds fixtures shared by tests across packages.
package testutil

import (
	"time"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/schema"
)

// ProductsModel is the model name of the product fixture.
const ProductsModel = "products"

// ProductDescriptor returns the descriptor of the product fixture:
// id, name, category, price, stock, active, created_at.
func ProductDescriptor() *schema.Descriptor {
	return schema.MustNew(ProductsModel, []schema.Field{
		{Name: "id", Type: schema.Integer},
		{Name: "name", Type: schema.Text},
		{Name: "category", Type: schema.Text},
		{Name: "price", Type: schema.Real},
		{Name: "stock", Type: schema.Integer},
		{Name: "active", Type: schema.Boolean},
		{Name: "created_at", Type: schema.DateTime},
	})
}

// ProductStart is the created_at of the first fixture product.
var ProductStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type product struct {
	name     string
	category string
	price    float64
	stock    int64
	active   bool
}

var products = []product{
	{"Laptop", "Electronics", 1000, 10, true},
	{"Mouse", "Electronics", 25, 100, true},
	{"Keyboard", "Electronics", 75, 50, true},
	{"Desk", "Furniture", 300, 20, true},
	{"Chair", "Furniture", 150, 30, false},
	{"Monitor", "Electronics", 200, 15, true},
}

// ProductRows returns the six fixture products with ids 1..6, created one
// day apart starting at ProductStart.
//
// Aggregates by category:
//
//	Electronics: 4 rows, sum(price)=1300, sum(stock)=175
//	Furniture:   2 rows, sum(price)=450,  sum(stock)=50
func ProductRows() []ir.Record {
	clock := NewDeterministicClock(ProductStart, 24*time.Hour)
	rows := make([]ir.Record, len(products))
	for i, p := range products {
		rows[i] = ir.Record{
			"id":         ir.Int(int64(i + 1)),
			"name":       ir.Text(p.name),
			"category":   ir.Text(p.category),
			"price":      ir.Real(p.price),
			"stock":      ir.Int(p.stock),
			"active":     ir.Bool(p.active),
			"created_at": ir.NewTime(clock.Now()),
		}
	}
	return rows
}

// ProductNames returns the name column of rows, in row order.
func ProductNames(rows []ir.Record) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if name, ok := r["name"].(ir.Text); ok {
			names = append(names, string(name))
		}
	}
	return names
}
