package postgres

// SQL queries for session introspection.
const (
	queryServerInfo = `
		SELECT
			current_setting('server_version'),
			current_database(),
			current_user`
)
