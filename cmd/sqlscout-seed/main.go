// Command sqlscout-seed creates a DuckDB database file with a small
// e-commerce dataset, useful for trying the service locally.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id INTEGER PRIMARY KEY,
		first_name VARCHAR NOT NULL,
		last_name VARCHAR NOT NULL,
		email VARCHAR NOT NULL,
		registration_date DATE,
		country VARCHAR,
		city VARCHAR,
		is_active BOOLEAN DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		product_name VARCHAR NOT NULL,
		category VARCHAR NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		cost DECIMAL(10,2) NOT NULL,
		description VARCHAR,
		created_date DATE
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id INTEGER PRIMARY KEY,
		customer_id INTEGER,
		order_date DATE NOT NULL,
		total_amount DECIMAL(10,2) NOT NULL,
		status VARCHAR NOT NULL,
		shipping_country VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		item_id INTEGER PRIMARY KEY,
		order_id INTEGER,
		product_id INTEGER,
		quantity INTEGER NOT NULL,
		unit_price DECIMAL(10,2) NOT NULL
	)`,

	`DELETE FROM customers`,
	`INSERT INTO customers VALUES
		(1, 'John', 'Smith', 'john.smith@email.com', '2023-01-15', 'USA', 'New York', true),
		(2, 'Sarah', 'Johnson', 'sarah.j@email.com', '2023-02-20', 'USA', 'Los Angeles', true),
		(3, 'Mike', 'Brown', 'mike.brown@email.com', '2023-03-10', 'Canada', 'Toronto', true),
		(4, 'Emma', 'Davis', 'emma.davis@email.com', '2023-04-05', 'UK', 'London', false),
		(5, 'David', 'Wilson', 'david.w@email.com', '2023-05-12', 'Australia', 'Sydney', true)`,

	`DELETE FROM products`,
	`INSERT INTO products VALUES
		(1, 'Laptop Pro 15"', 'Electronics', 1299.99, 800.00, 'High-performance laptop', '2023-01-01'),
		(2, 'Wireless Headphones', 'Electronics', 199.99, 120.00, 'Noise-cancelling headphones', '2023-01-01'),
		(3, 'Coffee Machine', 'Appliances', 299.99, 180.00, 'Automatic coffee maker', '2023-01-01'),
		(4, 'Running Shoes', 'Apparel', 129.99, 70.00, 'Professional running shoes', '2023-01-01'),
		(5, 'Smartphone Case', 'Accessories', 29.99, 15.00, 'Protective phone case', '2023-01-01')`,

	`DELETE FROM orders`,
	`INSERT INTO orders VALUES
		(1, 1, '2023-06-01', 1499.98, 'completed', 'USA'),
		(2, 2, '2023-06-15', 329.98, 'completed', 'USA'),
		(3, 3, '2023-07-01', 159.98, 'shipped', 'Canada'),
		(4, 1, '2023-07-15', 29.99, 'completed', 'USA'),
		(5, 5, '2023-08-01', 1629.97, 'processing', 'Australia')`,

	`DELETE FROM order_items`,
	`INSERT INTO order_items VALUES
		(1, 1, 1, 1, 1299.99),
		(2, 1, 2, 1, 199.99),
		(3, 2, 3, 1, 299.99),
		(4, 2, 5, 1, 29.99),
		(5, 3, 4, 1, 129.99),
		(6, 3, 5, 1, 29.99),
		(7, 4, 5, 1, 29.99),
		(8, 5, 1, 1, 1299.99),
		(9, 5, 2, 1, 199.99),
		(10, 5, 4, 1, 129.99)`,
}

func main() {
	path := flag.String("path", "data/sqlscout.db", "Path of the DuckDB file to create")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %s\n", *path)
}

func run(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return fmt.Errorf("execute seed statement: %w", err)
		}
	}
	return nil
}
