package query_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CredentialPool,Registry,Cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/pool"
	"icpquery/internal/query"
	"icpquery/internal/query/mocks"
	"icpquery/internal/record"
	"icpquery/internal/services"
	"icpquery/internal/store"
)

var testCred = miit.Credential{Identifier: "uuid-1", Sign: "sign-1"}

func filing(domain string) miit.QueryResult {
	return miit.QueryResult{
		ContentTypeName:  "",
		Domain:           domain,
		DomainID:         190000000001,
		LimitAccess:      "否",
		MainID:           110000000001,
		MainLicence:      "京ICP证030173号",
		NatureName:       "企业",
		ServiceID:        120000000001,
		ServiceLicence:   "京ICP证030173号-1",
		UnitName:         "北京百度网讯科技有限公司",
		UpdateRecordTime: "2024-03-01 16:30:00",
	}
}

type LookupSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	pool     *mocks.MockCredentialPool
	registry *mocks.MockRegistry
	cache    *mocks.MockCache
	metrics  *metrics.Metrics
	service  *query.Service
}

func TestLookupSuite(t *testing.T) {
	suite.Run(t, new(LookupSuite))
}

func (s *LookupSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.pool = mocks.NewMockCredentialPool(s.ctrl)
	s.registry = mocks.NewMockRegistry(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.metrics = metrics.New()
	svc, err := query.New(s.pool, s.registry, s.cache, query.WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.service = svc
}

func (s *LookupSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *LookupSuite) TestNewRequiresCollaborators() {
	_, err := query.New(nil, s.registry, s.cache)
	s.ErrorContains(err, "credential pool is required")
	_, err = query.New(s.pool, nil, s.cache)
	s.ErrorContains(err, "registry is required")
	_, err = query.New(s.pool, s.registry, nil)
	s.ErrorContains(err, "record cache is required")
}

func (s *LookupSuite) TestCacheHitSpendsNothing() {
	cached := &record.Record{ID: 7, Domain: "baidu.com"}
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(cached, nil)

	result, err := s.service.Lookup(context.Background(), "baidu.com")
	s.Require().NoError(err)
	s.True(result.Cached)
	s.Same(cached, result.Record)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheHits))
}

func (s *LookupSuite) TestNameIsNormalizedBeforeLookup() {
	cached := &record.Record{ID: 7, Domain: "baidu.com"}
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(cached, nil)

	result, err := s.service.Lookup(context.Background(), "  https://WWW.Baidu.com/index.html ")
	s.Require().NoError(err)
	s.True(result.Cached)
}

func (s *LookupSuite) TestEmptyNameIsRejected() {
	_, err := s.service.Lookup(context.Background(), "   ")
	s.ErrorIs(err, services.ErrValidation)
}

func (s *LookupSuite) TestMissPersistsFirstMatchAndReleases() {
	gomock.InOrder(
		s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(nil, store.ErrNotFound),
		s.pool.EXPECT().Acquire(gomock.Any()).Return(testCred, nil),
		s.registry.EXPECT().Query(gomock.Any(), testCred, "baidu.com", 1).Return(&miit.QueryPage{
			Total: 2,
			List:  []miit.QueryResult{filing("baidu.com"), filing("baidu.com.cn")},
		}, nil),
		s.pool.EXPECT().Release(testCred),
		s.cache.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec *record.Record) error {
			s.Equal("baidu.com", rec.Domain)
			rec.ID = 1
			return nil
		}),
	)

	result, err := s.service.Lookup(context.Background(), "baidu.com")
	s.Require().NoError(err)
	s.False(result.Cached)
	s.Equal(int64(1), result.Record.ID)
	s.Equal("北京百度网讯科技有限公司", result.Record.UnitName)
	s.Nil(result.Record.ContentTypeName)
	s.False(result.Record.LimitAccess)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheMisses))
}

func (s *LookupSuite) TestZeroMatchesReleasesAndReportsNotFound() {
	s.cache.EXPECT().Find(gomock.Any(), "nosuch.cn").Return(nil, store.ErrNotFound)
	s.pool.EXPECT().Acquire(gomock.Any()).Return(testCred, nil)
	s.registry.EXPECT().Query(gomock.Any(), testCred, "nosuch.cn", 1).Return(&miit.QueryPage{Total: 0}, nil)
	s.pool.EXPECT().Release(testCred)

	_, err := s.service.Lookup(context.Background(), "nosuch.cn")
	s.ErrorIs(err, services.ErrNotFound)
	s.Equal(404, services.HTTPStatus(err))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RecordsNotFound))
}

func (s *LookupSuite) TestRemoteFailureDropsCredential() {
	remoteErr := services.Wrap(services.ErrRemote, "miit", "query", "token expired", nil)
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(nil, store.ErrNotFound)
	s.pool.EXPECT().Acquire(gomock.Any()).Return(testCred, nil)
	s.registry.EXPECT().Query(gomock.Any(), testCred, "baidu.com", 1).Return(nil, remoteErr)
	s.registry.EXPECT().InvalidateToken().Times(1)
	s.pool.EXPECT().Release(gomock.Any()).Times(0)

	_, err := s.service.Lookup(context.Background(), "baidu.com")
	s.ErrorIs(err, remoteErr)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RemoteFailures))
}

func (s *LookupSuite) TestTransportFailureKeepsToken() {
	transportErr := services.Wrap(services.ErrTransport, "miit", "query", "connection reset", nil)
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(nil, store.ErrNotFound)
	s.pool.EXPECT().Acquire(gomock.Any()).Return(testCred, nil)
	s.registry.EXPECT().Query(gomock.Any(), testCred, "baidu.com", 1).Return(nil, transportErr)
	s.registry.EXPECT().InvalidateToken().Times(0)

	_, err := s.service.Lookup(context.Background(), "baidu.com")
	s.ErrorIs(err, services.ErrTransport)
	s.Equal(502, services.HTTPStatus(err))
}

func (s *LookupSuite) TestAcquireFailurePropagates() {
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(nil, store.ErrNotFound)
	s.pool.EXPECT().Acquire(gomock.Any()).Return(miit.Credential{}, services.ErrPoolUninitialized)

	_, err := s.service.Lookup(context.Background(), "baidu.com")
	s.ErrorIs(err, services.ErrPoolUninitialized)
}

func (s *LookupSuite) TestCacheFailureIsNotAMiss() {
	s.cache.EXPECT().Find(gomock.Any(), "baidu.com").Return(nil, errors.New("disk I/O error"))

	_, err := s.service.Lookup(context.Background(), "baidu.com")
	s.ErrorContains(err, "disk I/O error")
	s.Equal(500, services.HTTPStatus(err))
}

type oneShotSolver struct{ solves int }

func (o *oneShotSolver) Solve(context.Context) (miit.Credential, error) {
	o.solves++
	return testCred, nil
}

func TestLookupEndToEndWithPoolAndStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	registry.EXPECT().Query(gomock.Any(), testCred, "example.com", 1).
		Return(&miit.QueryPage{Total: 1, List: []miit.QueryResult{filing("example.com")}}, nil).
		Times(1)

	solver := &oneShotSolver{}
	p := pool.New(solver, pool.WithRetryInterval(time.Millisecond))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	cache := store.NewMemory()
	svc, err := query.New(p, registry, cache)
	require.NoError(t, err)

	first, err := svc.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, p.Len(), "credential returned to the pool")

	rows, err := cache.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	second, err := svc.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, 1, solver.solves)
}
