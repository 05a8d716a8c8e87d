package routes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/testutils"
	"github.com/bnema/proxied/pkg/logger"
)

func ptr[T any](v T) *T { return &v }

func newTestService(routes ...*domain.Route) (*Service, *testutils.MemoryRouteStore) {
	store := testutils.NewMemoryRouteStore(routes...)
	return NewService(store, logger.Nop()), store
}

func validInput(domains ...string) in.RouteInput {
	return in.RouteInput{
		Domains:   domains,
		Upstreams: []in.UpstreamInput{{IP: "10.0.0.1", Port: 80}, {IP: "10.0.0.2", Port: 8080}},
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	var fields []string
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestAdd_CreatesRoute(t *testing.T) {
	svc, store := newTestService()

	route, err := svc.Add(context.Background(), validInput("https://WWW.Example.com/path", "example.com"))

	require.NoError(t, err)
	_, uuidErr := uuid.Parse(route.Name)
	assert.NoError(t, uuidErr, "default name is a uuid")
	assert.True(t, route.Enabled)
	assert.True(t, route.HasChange)
	assert.Equal(t, []string{"example.com", "www.example.com"}, route.DomainNames())
	assert.Equal(t, "10.0.0.1", route.IP)
	assert.Equal(t, 80, route.Port)

	stored := store.Route(route.Name)
	require.NotNil(t, stored)
	assert.Len(t, stored.Upstreams, 2)
}

func TestAdd_SanitizesName(t *testing.T) {
	svc, _ := newTestService()
	input := validInput("example.com")
	input.Name = ptr("  My App (prod) ")

	route, err := svc.Add(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, "My-App--prod", route.Name)
}

func TestAdd_Validation(t *testing.T) {
	existing := &domain.Route{Name: "taken", Enabled: true, Domains: []domain.Domain{{Name: "used.example.com"}}}
	deleting := &domain.Route{Name: "old", Delete: true, Domains: []domain.Domain{{Name: "free.example.com"}}}

	tests := []struct {
		name   string
		input  in.RouteInput
		fields []string
	}{
		{
			name:   "no domains or upstreams",
			input:  in.RouteInput{},
			fields: []string{"domains", "upstreams"},
		},
		{
			name:   "domain without dot",
			input:  validInput("localhost"),
			fields: []string{"domains[0]"},
		},
		{
			name:   "trailing dot",
			input:  validInput("example.com."),
			fields: []string{"domains[0]"},
		},
		{
			name:   "domain used by another route",
			input:  validInput("ok.example.com", "used.example.com"),
			fields: []string{"domains[1]"},
		},
		{
			name:   "duplicate domain",
			input:  validInput("example.com", "EXAMPLE.com"),
			fields: []string{"domains[1]"},
		},
		{
			name: "bad upstreams",
			input: in.RouteInput{
				Domains:   []string{"example.com"},
				Upstreams: []in.UpstreamInput{{IP: "10.0.0.300", Port: 80}, {IP: "::1", Port: 0}, {IP: "10.0.0.1", Port: 65536}},
			},
			fields: []string{"upstreams[0]", "upstreams[1]", "upstreams[2]"},
		},
		{
			name: "name in use",
			input: func() in.RouteInput {
				i := validInput("example.com")
				i.Name = ptr("taken")
				return i
			}(),
			fields: []string{"name"},
		},
		{
			name: "unknown ssl type",
			input: func() in.RouteInput {
				i := validInput("example.com")
				i.SSLType = ptr(domain.SSLType("acme"))
				return i
			}(),
			fields: []string{"ssl_type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(existing, deleting)

			_, err := svc.Add(context.Background(), tt.input)

			assert.Equal(t, tt.fields, fieldsOf(t, err))
			count, _ := store.CountRoutes(context.Background(), domain.RouteFilter{})
			assert.Equal(t, 2, count, "nothing stored on validation failure")
		})
	}
}

func TestAdd_DomainOfDeletedRouteIsFree(t *testing.T) {
	svc, _ := newTestService(&domain.Route{Name: "old", Delete: true, Domains: []domain.Domain{{Name: "free.example.com"}}})

	_, err := svc.Add(context.Background(), validInput("free.example.com"))

	assert.NoError(t, err)
}

func TestUpdate_PartialAndMarksChanged(t *testing.T) {
	svc, store := newTestService()
	route, err := svc.Add(context.Background(), validInput("example.com"))
	require.NoError(t, err)
	route.HasChange = false
	require.NoError(t, store.SaveRoute(context.Background(), route))

	updated, err := svc.Update(context.Background(), route.Name, in.RouteInput{
		SSLType:  ptr(domain.SSLLetsEncrypt),
		ForceSSL: ptr(true),
		Domains:  []string{"example.com", "www.example.com"},
	})

	require.NoError(t, err)
	assert.True(t, updated.HasChange)
	assert.Equal(t, domain.SSLLetsEncrypt, updated.SSLType)
	assert.True(t, updated.ForceSSL)
	assert.Len(t, updated.Upstreams, 2, "upstreams untouched")
	assert.Equal(t, []string{"example.com", "www.example.com"}, store.Route(route.Name).DomainNames())
}

func TestUpdate_OwnDomainsAreNotConflicts(t *testing.T) {
	svc, _ := newTestService()
	route, err := svc.Add(context.Background(), validInput("example.com"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), route.Name, in.RouteInput{Domains: []string{"example.com"}})

	assert.NoError(t, err)
}

func TestUpdate_NameIsImmutable(t *testing.T) {
	svc, _ := newTestService()
	route, err := svc.Add(context.Background(), validInput("example.com"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), route.Name, in.RouteInput{Name: ptr("other")})

	assert.ErrorIs(t, err, domain.ErrNameImmutable)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Update(context.Background(), route.Name, in.RouteInput{Name: ptr(route.Name)})
	assert.NoError(t, err, "same name is accepted")
}

func TestRemoveAndRebuild(t *testing.T) {
	svc, store := newTestService(&domain.Route{Name: "r1", Enabled: true})

	_, err := svc.Rebuild(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, store.Route("r1").HasChange)

	_, err = svc.Remove(context.Background(), "1")
	require.NoError(t, err)
	r := store.Route("r1")
	assert.True(t, r.Delete)
	assert.True(t, r.HasChange)

	_, err = svc.Update(context.Background(), "r1", in.RouteInput{Label: ptr("x")})
	assert.ErrorIs(t, err, ErrPendingDeletion)
}

func TestGet_ResolvesIDThenName(t *testing.T) {
	svc, _ := newTestService(&domain.Route{Name: "first"}, &domain.Route{Name: "1"})

	r, err := svc.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "1", r.Name)

	r, err = svc.Get(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)
}

func TestCountAndReset(t *testing.T) {
	svc, _ := newTestService(
		&domain.Route{Name: "a", Enabled: true, HasChange: true},
		&domain.Route{Name: "b", Enabled: false, HasError: true},
		&domain.Route{Name: "c", Enabled: true, Delete: true, HasChange: true},
	)

	counts, err := svc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.RouteCounts{Total: 3, Changed: 2, Errored: 1, Disabled: 1, Deleting: 1}, counts)

	require.NoError(t, svc.Reset(context.Background()))
	counts, err = svc.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}
