package detectionRepository

const (
	queryCreateProductsTable = `
		CREATE TABLE IF NOT EXISTS products (
			id         TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	queryInsertProduct = `
		INSERT INTO products (
			id,
			document,
			created_at
		) VALUES (
			:id,
			:document,
			:created_at
		)
	`
)
