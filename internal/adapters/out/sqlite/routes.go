package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

var _ out.RouteStore = (*Store)(nil)

func where(filter domain.RouteFilter) (string, []any) {
	var conds []string
	var args []any
	switch {
	case filter.OnlyChanged && !filter.RenewBefore.IsZero():
		due := "ssl_type = ? AND enabled = 1 AND pending_delete = 0" +
			" AND (certificate_expiry = 0 OR certificate_expiry < ?)"
		args = append(args, string(domain.SSLLetsEncrypt), filter.RenewBefore.Unix())
		if !filter.RetryBefore.IsZero() {
			due += " AND (has_error = 0 OR updated <= ?)"
			args = append(args, filter.RetryBefore.Unix())
		}
		conds = append(conds, "(has_change = 1 OR ("+due+"))")
	case filter.OnlyChanged:
		conds = append(conds, "has_change = 1")
	}
	if filter.ExcludeDeleted {
		conds = append(conds, "pending_delete = 0")
	}
	if filter.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, filter.Name)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func scanRoute(row interface{ Scan(...any) error }) (*domain.Route, error) {
	var (
		r                                   domain.Route
		enabled, del, force, change, hasErr int
		sslType                             string
		expiry, added, updated              int64
	)
	err := row.Scan(&r.ID, &r.Name, &r.Label, &enabled, &del, &r.Rename, &sslType, &force,
		&change, &hasErr, &r.Error, &expiry, &r.IP, &r.Port, &added, &updated)
	if err != nil {
		return nil, err
	}
	r.Enabled = enabled == 1
	r.Delete = del == 1
	r.ForceSSL = force == 1
	r.HasChange = change == 1
	r.HasError = hasErr == 1
	r.SSLType = domain.SSLType(sslType)
	r.CertificateExpiry = timeOrZero(expiry)
	r.Added = timeOrZero(added)
	r.Updated = timeOrZero(updated)
	return &r, nil
}

func (s *Store) loadChildren(ctx context.Context, r *domain.Route) error {
	rows, err := s.db.QueryContext(ctx, s.q.SelectDomains, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query domains: %w", err)
	}
	r.Domains = nil
	for rows.Next() {
		var d domain.Domain
		if err := rows.Scan(&d.ID, &d.RouteID, &d.Name); err != nil {
			rows.Close()
			return err
		}
		r.Domains = append(r.Domains, d)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, s.q.SelectUpstreams, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query upstreams: %w", err)
	}
	r.Upstreams = nil
	for rows.Next() {
		var u domain.Upstream
		if err := rows.Scan(&u.ID, &u.RouteID, &u.IP, &u.Port); err != nil {
			rows.Close()
			return err
		}
		r.Upstreams = append(r.Upstreams, u)
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func (s *Store) ListRoutes(ctx context.Context, filter domain.RouteFilter) ([]*domain.Route, error) {
	clause, args := where(filter)
	rows, err := s.db.QueryContext(ctx, s.q.SelectRoutes+clause+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	var routes []*domain.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	for _, r := range routes {
		if err := s.loadChildren(ctx, r); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

func (s *Store) getOne(ctx context.Context, clause string, arg any) (*domain.Route, error) {
	r, err := scanRoute(s.db.QueryRowContext(ctx, s.q.SelectRoutes+clause, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) GetRoute(ctx context.Context, id int64) (*domain.Route, error) {
	return s.getOne(ctx, " WHERE id = ?", id)
}

func (s *Store) GetRouteByName(ctx context.Context, name string) (*domain.Route, error) {
	return s.getOne(ctx, " WHERE name = ?", name)
}

func (s *Store) CountRoutes(ctx context.Context, filter domain.RouteFilter) (int, error) {
	clause, args := where(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, s.q.CountRoutes+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return n, nil
}

func (s *Store) DomainInUse(ctx context.Context, name string, excludeRouteID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q.DomainInUse, name, excludeRouteID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check domain: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CreateRoute(ctx context.Context, route *domain.Route) error {
	now := time.Now().UTC().Truncate(time.Second)
	if route.Added.IsZero() {
		route.Added = now
	}
	route.Updated = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q.InsertRoute,
			route.Name, route.Label, boolInt(route.Enabled), boolInt(route.Delete), route.Rename,
			string(route.SSLType), boolInt(route.ForceSSL), boolInt(route.HasChange),
			boolInt(route.HasError), route.Error, unixOrZero(route.CertificateExpiry),
			route.IP, route.Port, unixOrZero(route.Added), unixOrZero(route.Updated))
		if err != nil {
			return fmt.Errorf("failed to insert route: %w", err)
		}
		if route.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		return s.insertChildren(ctx, tx, route)
	})
}

func (s *Store) SaveRoute(ctx context.Context, route *domain.Route) error {
	route.Updated = time.Now().UTC().Truncate(time.Second)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q.UpdateRoute,
			route.Name, route.Label, boolInt(route.Enabled), boolInt(route.Delete), route.Rename,
			string(route.SSLType), boolInt(route.ForceSSL), boolInt(route.HasChange),
			boolInt(route.HasError), route.Error, unixOrZero(route.CertificateExpiry),
			route.IP, route.Port, unixOrZero(route.Updated), route.ID)
		if err != nil {
			return fmt.Errorf("failed to update route: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrRouteNotFound
		}
		if _, err := tx.ExecContext(ctx, s.q.DeleteDomains, route.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q.DeleteUpstreams, route.ID); err != nil {
			return err
		}
		return s.insertChildren(ctx, tx, route)
	})
}

func (s *Store) insertChildren(ctx context.Context, tx *sql.Tx, route *domain.Route) error {
	for i := range route.Domains {
		d := &route.Domains[i]
		res, err := tx.ExecContext(ctx, s.q.InsertDomain, route.ID, d.Name)
		if err != nil {
			return fmt.Errorf("failed to insert domain %s: %w", d.Name, err)
		}
		d.RouteID = route.ID
		if d.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	for i := range route.Upstreams {
		u := &route.Upstreams[i]
		res, err := tx.ExecContext(ctx, s.q.InsertUpstream, route.ID, u.IP, u.Port)
		if err != nil {
			return fmt.Errorf("failed to insert upstream %s: %w", u.Address(), err)
		}
		u.RouteID = route.ID
		if u.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteRoute(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q.DeleteRoute, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRouteNotFound
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{s.q.ResetUpstreams, s.q.ResetDomains, s.q.ResetRoutes} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("failed to reset routes: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
