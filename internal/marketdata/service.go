package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/cache"
	"github.com/mExOms/sor/pkg/types"
)

// Service provides order book snapshots and the symbol to venue mapping
// consumed by the resolver and scorer
type Service interface {
	GetOrderBook(ctx context.Context, venue, symbol string) (*types.OrderBook, error)
	CachedBook(venue, symbol string) (*types.OrderBook, bool)
	VenuesForSymbol(symbol string) []string
}

// BookFetcher retrieves a live order book from one venue
type BookFetcher interface {
	FetchOrderBook(ctx context.Context, symbol string) (*types.OrderBook, error)
}

type venueEntry struct {
	fetcher BookFetcher
	symbols map[string]struct{}
}

// SnapshotService serves order books from a TTL cache, fetching through
// the venue on a miss. Scoring paths read the cache only.
type SnapshotService struct {
	mu     sync.RWMutex
	order  []string
	venues map[string]*venueEntry
	books  *cache.MemoryCache
	ttl    time.Duration
	logger *logrus.Entry
}

// NewSnapshotService creates a snapshot service with the given book TTL
func NewSnapshotService(ttl time.Duration) *SnapshotService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SnapshotService{
		venues: make(map[string]*venueEntry),
		books:  cache.NewMemoryCache(),
		ttl:    ttl,
		logger: logrus.WithField("component", "marketdata"),
	}
}

// RegisterVenue declares a venue, its book fetcher and the symbols it trades
func (s *SnapshotService) RegisterVenue(venue string, fetcher BookFetcher, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.venues[venue]
	if !ok {
		entry = &venueEntry{symbols: make(map[string]struct{})}
		s.venues[venue] = entry
		s.order = append(s.order, venue)
	}
	entry.fetcher = fetcher
	for _, sym := range symbols {
		entry.symbols[sym] = struct{}{}
	}
}

// GetOrderBook returns a cached snapshot or fetches one through the venue
func (s *SnapshotService) GetOrderBook(ctx context.Context, venue, symbol string) (*types.OrderBook, error) {
	if book, ok := s.CachedBook(venue, symbol); ok {
		return book, nil
	}

	s.mu.RLock()
	entry, ok := s.venues[venue]
	s.mu.RUnlock()
	if !ok || entry.fetcher == nil {
		return nil, fmt.Errorf("no market data source for venue %s", venue)
	}

	book, err := entry.fetcher.FetchOrderBook(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch order book %s %s: %w", venue, symbol, err)
	}
	book.Venue = venue
	book.Symbol = symbol
	if book.Timestamp.IsZero() {
		book.Timestamp = time.Now()
	}

	s.books.Set(bookKey(venue, symbol), book, s.ttl)
	return book, nil
}

// CachedBook returns a snapshot from cache only; it never blocks on I/O
func (s *SnapshotService) CachedBook(venue, symbol string) (*types.OrderBook, bool) {
	v, ok := s.books.Get(bookKey(venue, symbol))
	if !ok {
		return nil, false
	}
	return v.(*types.OrderBook), true
}

// UpdateBook stores a pushed snapshot (e.g. from a venue stream)
func (s *SnapshotService) UpdateBook(book *types.OrderBook) {
	if book == nil || book.Venue == "" || book.Symbol == "" {
		return
	}
	if book.Timestamp.IsZero() {
		book.Timestamp = time.Now()
	}
	s.books.Set(bookKey(book.Venue, book.Symbol), book, s.ttl)
}

// VenuesForSymbol lists venues trading the symbol, in registration order
func (s *SnapshotService) VenuesForSymbol(symbol string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var venues []string
	for _, venue := range s.order {
		if _, ok := s.venues[venue].symbols[symbol]; ok {
			venues = append(venues, venue)
		}
	}
	return venues
}

// Close releases the snapshot cache
func (s *SnapshotService) Close() {
	s.books.Close()
}

func bookKey(venue, symbol string) string {
	return "book:" + venue + ":" + symbol
}
