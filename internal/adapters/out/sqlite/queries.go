package sqlite

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`
	CREATE TABLE route (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		name               TEXT    NOT NULL UNIQUE,
		label              TEXT    NOT NULL DEFAULT '',
		enabled            INTEGER NOT NULL DEFAULT 1,
		pending_delete     INTEGER NOT NULL DEFAULT 0,
		rename_from        TEXT    NOT NULL DEFAULT '',
		ssl_type           TEXT    NOT NULL DEFAULT '',
		force_ssl          INTEGER NOT NULL DEFAULT 0,
		has_change         INTEGER NOT NULL DEFAULT 1,
		has_error          INTEGER NOT NULL DEFAULT 0,
		error              TEXT    NOT NULL DEFAULT '',
		certificate_expiry INTEGER NOT NULL DEFAULT 0,
		ip                 TEXT    NOT NULL DEFAULT '',
		port               INTEGER NOT NULL DEFAULT 0,
		added              INTEGER NOT NULL DEFAULT 0,
		updated            INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE domain (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		route_id INTEGER NOT NULL REFERENCES route(id) ON DELETE CASCADE,
		name     TEXT    NOT NULL
	);
	CREATE INDEX idx_domain_name ON domain(name);
	CREATE INDEX idx_domain_route ON domain(route_id);
	CREATE TABLE upstream (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		route_id INTEGER NOT NULL REFERENCES route(id) ON DELETE CASCADE,
		ip       TEXT    NOT NULL,
		port     INTEGER NOT NULL DEFAULT 80
	);
	CREATE INDEX idx_upstream_route ON upstream(route_id);
	`,
}

// routeQueries contains the SQL used by the route store.
type routeQueries struct {
	SelectRoutes    string
	CountRoutes     string
	InsertRoute     string
	UpdateRoute     string
	DeleteRoute     string
	SelectDomains   string
	InsertDomain    string
	DeleteDomains   string
	SelectUpstreams string
	InsertUpstream  string
	DeleteUpstreams string
	DomainInUse     string
	ResetUpstreams  string
	ResetDomains    string
	ResetRoutes     string
}

const routeColumns = `id, name, label, enabled, pending_delete, rename_from, ssl_type, force_ssl,
	has_change, has_error, error, certificate_expiry, ip, port, added, updated`

func newRouteQueries() *routeQueries {
	return &routeQueries{
		SelectRoutes: `SELECT ` + routeColumns + ` FROM route`,
		CountRoutes:  `SELECT COUNT(*) FROM route`,
		InsertRoute: `
			INSERT INTO route (name, label, enabled, pending_delete, rename_from, ssl_type, force_ssl,
				has_change, has_error, error, certificate_expiry, ip, port, added, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
		UpdateRoute: `
			UPDATE route SET name = ?, label = ?, enabled = ?, pending_delete = ?, rename_from = ?,
				ssl_type = ?, force_ssl = ?, has_change = ?, has_error = ?, error = ?,
				certificate_expiry = ?, ip = ?, port = ?, updated = ?
			WHERE id = ?
		`,
		DeleteRoute:     `DELETE FROM route WHERE id = ?`,
		SelectDomains:   `SELECT id, route_id, name FROM domain WHERE route_id = ? ORDER BY id`,
		InsertDomain:    `INSERT INTO domain (route_id, name) VALUES (?, ?)`,
		DeleteDomains:   `DELETE FROM domain WHERE route_id = ?`,
		SelectUpstreams: `SELECT id, route_id, ip, port FROM upstream WHERE route_id = ? ORDER BY id`,
		InsertUpstream:  `INSERT INTO upstream (route_id, ip, port) VALUES (?, ?, ?)`,
		DeleteUpstreams: `DELETE FROM upstream WHERE route_id = ?`,
		DomainInUse: `
			SELECT COUNT(*) FROM domain d
			JOIN route r ON r.id = d.route_id
			WHERE d.name = ? AND r.pending_delete = 0 AND r.id != ?
		`,
		ResetUpstreams: `DELETE FROM upstream`,
		ResetDomains:   `DELETE FROM domain`,
		ResetRoutes:    `DELETE FROM route`,
	}
}
