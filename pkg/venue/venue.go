// Package venue ties the order book, matching engine, escrow ledger, and
// bank together behind the external operation surface. Every operation runs
// under one mutex, request-at-a-time, and commits its storage writes in a
// single batch at the end: a failed call leaves no trace.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openlob/openlob/params"
	"github.com/openlob/openlob/pkg/bank"
	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/engine"
	"github.com/openlob/openlob/pkg/escrow"
	"github.com/openlob/openlob/pkg/market"
	"github.com/openlob/openlob/pkg/storage"
	"github.com/openlob/openlob/pkg/util"
)

// UpdateHandler is notified after a committed operation touches a market's
// book. It runs outside the venue mutex, so it may call venue operations.
type UpdateHandler func(Update)

type Venue struct {
	mu  sync.Mutex
	log *zap.SugaredLogger

	authority common.Address
	halted    bool
	mktCfgs   []params.MarketConfig

	store    *storage.Store
	bank     *bank.Keeper
	ledger   *escrow.Ledger
	engine   *engine.Engine
	registry *market.Registry

	books map[string]*book.OrderBook
	// orderMarkets routes a cancel to the book holding the order.
	orderMarkets map[string]string
	seq          uint64

	onUpdate UpdateHandler
}

// New builds a venue from config and rebuilds any persisted state: balances,
// escrow records, and resting orders scanned back into their books.
func New(cfg params.Venue, store *storage.Store, clock util.Clock, logger *zap.Logger) (*Venue, error) {
	if !common.IsHexAddress(cfg.Authority) {
		return nil, fmt.Errorf("invalid authority address %q", cfg.Authority)
	}
	keeper := bank.NewKeeper()
	ledger := escrow.NewLedger(keeper)

	v := &Venue{
		log:          logger.Sugar().Named("venue"),
		authority:    common.HexToAddress(cfg.Authority),
		store:        store,
		bank:         keeper,
		ledger:       ledger,
		engine:       engine.New(ledger, keeper, clock),
		registry:     market.NewRegistry(),
		books:        make(map[string]*book.OrderBook),
		orderMarkets: make(map[string]string),
	}

	// Persisted venue state wins over config; a fresh store adopts the
	// configured markets.
	st, found, err := store.LoadVenueState()
	if err != nil {
		return nil, fmt.Errorf("load venue state: %w", err)
	}
	mktCfgs := cfg.Markets
	if found {
		v.halted = st.Halted
		mktCfgs = st.Markets
	}
	for _, mc := range mktCfgs {
		if err := v.addMarket(mc); err != nil {
			return nil, err
		}
	}
	if !found {
		batch := store.NewBatch()
		if err := batch.SaveVenueState(storage.VenueState{Halted: v.halted, Markets: v.mktCfgs}); err != nil {
			return nil, err
		}
		if err := store.Commit(batch); err != nil {
			return nil, err
		}
	}

	if err := v.rebuild(); err != nil {
		return nil, fmt.Errorf("rebuild venue state: %w", err)
	}
	return v, nil
}

func (v *Venue) addMarket(mc params.MarketConfig) error {
	m, err := market.New(mc.Base, mc.Quote, mc.TickSize, mc.LotSize, mc.MinNotional)
	if err != nil {
		return err
	}
	if err := v.registry.Register(m); err != nil {
		return err
	}
	v.books[m.ID] = book.New(m.ID)
	v.mktCfgs = append(v.mktCfgs, mc)
	return nil
}

// rebuild restores balances, escrows, resting orders, and the sequence
// counter from the store.
func (v *Venue) rebuild() error {
	balances, err := v.store.LoadBalances()
	if err != nil {
		return err
	}
	for _, b := range balances {
		v.bank.Restore(b.Owner, b.Asset, b.Amount)
	}

	escrows, err := v.store.LoadEscrows()
	if err != nil {
		return err
	}
	for _, rec := range escrows {
		v.ledger.Restore(rec)
	}

	orders, err := v.store.LoadOrders()
	if err != nil {
		return err
	}
	for mktID, list := range orders {
		ob, ok := v.books[mktID]
		if !ok {
			return fmt.Errorf("persisted order for unknown market %s", mktID)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Sequence < list[j].Sequence })
		for _, o := range list {
			if err := ob.Insert(o); err != nil {
				return err
			}
			v.orderMarkets[o.ID] = mktID
		}
		if ob.Crossed() {
			return fmt.Errorf("rebuilt book for %s is crossed", mktID)
		}
	}

	v.seq, err = v.store.LoadSequence()
	if err != nil {
		return err
	}
	if len(orders) > 0 || len(balances) > 0 {
		v.log.Infow("state_rebuilt", "orders", len(v.orderMarkets), "balances", len(balances), "sequence", v.seq)
	}
	return nil
}

// SetUpdateHandler registers the post-commit notification hook. Register
// before serving: the handler reference is read without the mutex.
func (v *Venue) SetUpdateHandler(h UpdateHandler) { v.onUpdate = h }

// publish delivers a pending update once the operation's deferred unlock has
// run. Deferred before the mutex is taken, so the handler can safely re-enter
// venue operations. A nil update (failed call) delivers nothing.
func (v *Venue) publish(upd **Update) {
	if v.onUpdate != nil && *upd != nil {
		v.onUpdate(**upd)
	}
}

// update builds the notification payload. Callers hold the mutex.
func (v *Venue) update(mktID string, trades []engine.Trade) *Update {
	return &Update{Market: mktID, Trades: trades, Book: v.snapshotLocked(mktID)}
}

// ============================================================
// Funding
// ============================================================

func (v *Venue) Deposit(owner common.Address, asset string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.bank.Deposit(owner, asset, amount); err != nil {
		return err
	}
	batch := v.store.NewBatch()
	if err := batch.SaveBalance(owner, asset, v.bank.Balance(owner, asset)); err != nil {
		batch.Discard()
		return err
	}
	if err := v.store.Commit(batch); err != nil {
		return err
	}
	v.log.Infow("deposit", "owner", owner.Hex(), "asset", asset, "amount", amount)
	return nil
}

func (v *Venue) Withdraw(owner common.Address, asset string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.bank.Withdraw(owner, asset, amount); err != nil {
		return err
	}
	batch := v.store.NewBatch()
	if err := batch.SaveBalance(owner, asset, v.bank.Balance(owner, asset)); err != nil {
		batch.Discard()
		return err
	}
	if err := v.store.Commit(batch); err != nil {
		return err
	}
	v.log.Infow("withdraw", "owner", owner.Hex(), "asset", asset, "amount", amount)
	return nil
}

func (v *Venue) Balances(owner common.Address) map[string]decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bank.Balances(owner)
}

// ============================================================
// Orders
// ============================================================

// PlaceLimitOrder validates the request, pulls the deposit, matches, and
// rests any remainder. Validation happens strictly before the pull, and the
// pull strictly before any book or escrow mutation.
func (v *Venue) PlaceLimitOrder(req PlaceLimitRequest) (*PlaceOrderResult, error) {
	var upd *Update
	defer v.publish(&upd)
	v.mu.Lock()
	defer v.mu.Unlock()

	mkt, ob, side, err := v.admit(req.Market, req.Side)
	if err != nil {
		return nil, err
	}
	if !req.Price.IsPositive() {
		return nil, ErrZeroPrice
	}
	if !req.Quantity.IsPositive() {
		return nil, ErrZeroQuantity
	}
	if err := mkt.ValidatePrice(req.Price); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if err := mkt.ValidateQuantity(req.Quantity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}
	if err := mkt.ValidateNotional(req.Price, req.Quantity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotional, err)
	}

	// A buy deposits quote for the full limit cost, a sell deposits the
	// base quantity. A mismatch is rejected before any mutation.
	asset := mkt.Base
	required := req.Quantity
	if side == book.Bid {
		asset = mkt.Quote
		required = req.Price.Mul(req.Quantity)
	}
	if req.Funds.Asset != asset {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrIncorrectAsset, asset, req.Funds.Asset)
	}
	if !req.Funds.Amount.Equal(required) {
		return nil, fmt.Errorf("%w: want %s %s, got %s", ErrInvalidQuantity, required, asset, req.Funds.Amount)
	}

	if err := v.bank.Pull(req.Owner, asset, required); err != nil {
		return nil, err
	}

	v.seq++
	o := &book.Order{
		ID:        uuid.NewString(),
		Market:    mkt.ID,
		Side:      side,
		Owner:     req.Owner,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		Sequence:  v.seq,
	}

	res, err := v.engine.Match(mkt, ob, o, engine.Limit, required)
	if err != nil {
		v.log.Errorw("match_invariant_failure", "market", mkt.ID, "order", o.ID, "err", err)
		return nil, err
	}
	if err := v.persistMatch(mkt, ob, o, res); err != nil {
		return nil, err
	}

	v.log.Infow("limit_order",
		"market", mkt.ID, "order", o.ID, "side", side.String(), "owner", req.Owner.Hex(),
		"price", req.Price, "quantity", req.Quantity,
		"fills", len(res.Trades), "rested", res.Rested)
	upd = v.update(mkt.ID, res.Trades)

	return &PlaceOrderResult{
		OrderID:   o.ID,
		Market:    mkt.ID,
		Side:      side.String(),
		Fills:     res.Trades,
		Filled:    res.Filled,
		Remaining: o.Remaining,
		Rested:    res.Rested,
		Refund:    Funds{Asset: asset, Amount: res.Refund},
	}, nil
}

// PlaceMarketOrder fills as much as the book and the deposit allow. The
// unfilled remainder never rests: its funds come back in the refund and the
// result reports the partial fill.
func (v *Venue) PlaceMarketOrder(req PlaceMarketRequest) (*PlaceOrderResult, error) {
	var upd *Update
	defer v.publish(&upd)
	v.mu.Lock()
	defer v.mu.Unlock()

	mkt, ob, side, err := v.admit(req.Market, req.Side)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, ErrZeroQuantity
	}
	if err := mkt.ValidateQuantity(req.Quantity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}

	// A market sell deposits exactly the base quantity. A market buy
	// deposits its quote budget, which bounds how much it can fill.
	asset := mkt.Base
	if side == book.Bid {
		asset = mkt.Quote
	}
	if req.Funds.Asset != asset {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrIncorrectAsset, asset, req.Funds.Asset)
	}
	if side == book.Ask && !req.Funds.Amount.Equal(req.Quantity) {
		return nil, fmt.Errorf("%w: want %s %s, got %s", ErrInvalidQuantity, req.Quantity, asset, req.Funds.Amount)
	}
	if !req.Funds.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrInvalidQuantity)
	}

	if err := v.bank.Pull(req.Owner, asset, req.Funds.Amount); err != nil {
		return nil, err
	}

	v.seq++
	o := &book.Order{
		ID:        uuid.NewString(),
		Market:    mkt.ID,
		Side:      side,
		Owner:     req.Owner,
		Price:     decimal.Zero, // market order: no limit
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		Sequence:  v.seq,
	}

	res, err := v.engine.Match(mkt, ob, o, engine.Market, req.Funds.Amount)
	if err != nil {
		v.log.Errorw("match_invariant_failure", "market", mkt.ID, "order", o.ID, "err", err)
		return nil, err
	}
	if err := v.persistMatch(mkt, ob, o, res); err != nil {
		return nil, err
	}

	v.log.Infow("market_order",
		"market", mkt.ID, "order", o.ID, "side", side.String(), "owner", req.Owner.Hex(),
		"quantity", req.Quantity, "filled", res.Filled, "refund", res.Refund)
	upd = v.update(mkt.ID, res.Trades)

	return &PlaceOrderResult{
		OrderID:   o.ID,
		Market:    mkt.ID,
		Side:      side.String(),
		Fills:     res.Trades,
		Filled:    res.Filled,
		Remaining: o.Remaining,
		Rested:    false,
		Refund:    Funds{Asset: asset, Amount: res.Refund},
	}, nil
}

// admit runs the checks common to both order types.
func (v *Venue) admit(mktID, sideStr string) (*market.Market, *book.OrderBook, book.Side, error) {
	if v.halted {
		return nil, nil, 0, ErrHalted
	}
	side, err := book.ParseSide(sideStr)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %q", ErrInvalidSide, sideStr)
	}
	mkt, ok := v.registry.Get(mktID)
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrMarketNotFound, mktID)
	}
	return mkt, v.books[mkt.ID], side, nil
}

// persistMatch stages every state change of one matching call into a single
// batch and commits it.
func (v *Venue) persistMatch(mkt *market.Market, ob *book.OrderBook, taker *book.Order, res *engine.Result) error {
	batch := v.store.NewBatch()
	touched := map[common.Address]struct{}{taker.Owner: {}}

	for _, t := range res.Trades {
		if err := batch.SaveTrade(t); err != nil {
			batch.Discard()
			return err
		}
		touched[common.HexToAddress(t.MakerOwner)] = struct{}{}

		if maker, stillResting := ob.Lookup(t.MakerOrderID); stillResting {
			// Partial maker fill: order and escrow both shrank.
			if err := batch.SaveOrder(maker); err != nil {
				batch.Discard()
				return err
			}
			if rec, ok := v.ledger.Get(maker.ID); ok {
				if err := batch.SaveEscrow(rec); err != nil {
					batch.Discard()
					return err
				}
			}
		} else {
			if err := batch.DeleteOrder(mkt.ID, t.MakerOrderID); err != nil {
				batch.Discard()
				return err
			}
			if err := batch.DeleteEscrow(t.MakerOrderID); err != nil {
				batch.Discard()
				return err
			}
			delete(v.orderMarkets, t.MakerOrderID)
		}
	}

	if res.Rested {
		if err := batch.SaveOrder(taker); err != nil {
			batch.Discard()
			return err
		}
		if rec, ok := v.ledger.Get(taker.ID); ok {
			if err := batch.SaveEscrow(rec); err != nil {
				batch.Discard()
				return err
			}
		}
		v.orderMarkets[taker.ID] = mkt.ID
	}

	for owner := range touched {
		for _, asset := range []string{mkt.Base, mkt.Quote} {
			if err := batch.SaveBalance(owner, asset, v.bank.Balance(owner, asset)); err != nil {
				batch.Discard()
				return err
			}
		}
	}
	if err := batch.SaveSequence(v.seq); err != nil {
		batch.Discard()
		return err
	}
	return v.store.Commit(batch)
}

// CancelOrder removes a resting order and refunds its remaining escrow.
// Only the owner may cancel; an already-filled or already-cancelled id is
// NotFound and can never double-refund.
func (v *Venue) CancelOrder(orderID string, caller common.Address) (*CancelResult, error) {
	var upd *Update
	defer v.publish(&upd)
	v.mu.Lock()
	defer v.mu.Unlock()

	mktID, ok := v.orderMarkets[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	ob := v.books[mktID]
	o, ok := ob.Lookup(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if o.Owner != caller {
		return nil, fmt.Errorf("%w: caller %s does not own order %s", ErrUnauthorized, caller.Hex(), orderID)
	}

	if _, removed := ob.Remove(orderID); !removed {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	delete(v.orderMarkets, orderID)
	rec, err := v.ledger.Refund(orderID)
	if err != nil {
		return nil, err
	}

	batch := v.store.NewBatch()
	if err := batch.DeleteOrder(mktID, orderID); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := batch.DeleteEscrow(orderID); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := batch.SaveBalance(o.Owner, rec.Asset, v.bank.Balance(o.Owner, rec.Asset)); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := v.store.Commit(batch); err != nil {
		return nil, err
	}

	v.log.Infow("order_cancelled",
		"market", mktID, "order", orderID, "owner", caller.Hex(),
		"refund_asset", rec.Asset, "refund_amount", rec.Amount)
	upd = v.update(mktID, nil)

	return &CancelResult{
		OrderID:  orderID,
		Refunded: Funds{Asset: rec.Asset, Amount: rec.Amount},
	}, nil
}

// ============================================================
// Config
// ============================================================

// UpdateConfig is authority-only: flip the halt flag and/or register new
// markets at runtime. The whole request validates and persists before any of
// it applies, so a rejected request leaves the venue exactly as it was.
func (v *Venue) UpdateConfig(caller common.Address, req UpdateConfigRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.authority {
		return fmt.Errorf("%w: %s is not the venue authority", ErrUnauthorized, caller.Hex())
	}

	halted := v.halted
	if req.Halted != nil {
		halted = *req.Halted
	}
	adds := make([]*market.Market, 0, len(req.AddMarkets))
	for _, mc := range req.AddMarkets {
		m, err := market.New(mc.Base, mc.Quote, mc.TickSize, mc.LotSize, mc.MinNotional)
		if err != nil {
			return err
		}
		if v.registry.Exists(m.ID) {
			return fmt.Errorf("market %s already registered", m.ID)
		}
		for _, prev := range adds {
			if prev.ID == m.ID {
				return fmt.Errorf("market %s appears twice in request", m.ID)
			}
		}
		adds = append(adds, m)
	}

	mktCfgs := make([]params.MarketConfig, 0, len(v.mktCfgs)+len(req.AddMarkets))
	mktCfgs = append(mktCfgs, v.mktCfgs...)
	mktCfgs = append(mktCfgs, req.AddMarkets...)

	batch := v.store.NewBatch()
	if err := batch.SaveVenueState(storage.VenueState{Halted: halted, Markets: mktCfgs}); err != nil {
		batch.Discard()
		return err
	}
	if err := v.store.Commit(batch); err != nil {
		return err
	}

	v.halted = halted
	v.mktCfgs = mktCfgs
	for _, m := range adds {
		// Cannot fail: duplicates were rejected above.
		if err := v.registry.Register(m); err != nil {
			return err
		}
		v.books[m.ID] = book.New(m.ID)
	}
	v.log.Infow("config_updated", "halted", v.halted, "markets", v.registry.Count())
	return nil
}

// ============================================================
// Queries
// ============================================================

// QueryBids lists resting bids per market, markets ascending by id, orders in
// match order. An empty market id means all markets.
func (v *Venue) QueryBids(mktID string) ([]MarketOrders, error) {
	return v.querySide(mktID, book.Bid)
}

// QueryAsks is the ask-side counterpart of QueryBids.
func (v *Venue) QueryAsks(mktID string) ([]MarketOrders, error) {
	return v.querySide(mktID, book.Ask)
}

func (v *Venue) querySide(mktID string, side book.Side) ([]MarketOrders, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []MarketOrders
	for _, m := range v.registry.List() {
		if mktID != "" && m.ID != mktID {
			continue
		}
		out = append(out, MarketOrders{Market: m.ID, Orders: v.books[m.ID].SideOrders(side)})
	}
	if mktID != "" && len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, mktID)
	}
	return out, nil
}

func (v *Venue) QueryConfig() ConfigView {
	v.mu.Lock()
	defer v.mu.Unlock()
	markets := make([]params.MarketConfig, len(v.mktCfgs))
	copy(markets, v.mktCfgs)
	return ConfigView{Authority: v.authority.Hex(), Halted: v.halted, Markets: markets}
}

func (v *Venue) Markets() []*market.Market { return v.registry.List() }

// Snapshot returns the aggregated levels of one market's book.
func (v *Venue) Snapshot(mktID string) (*BookSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.books[mktID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, mktID)
	}
	snap := v.snapshotLocked(mktID)
	return &snap, nil
}

func (v *Venue) snapshotLocked(mktID string) BookSnapshot {
	ob := v.books[mktID]
	return BookSnapshot{
		Market: mktID,
		Bids:   ob.Levels(book.Bid),
		Asks:   ob.Levels(book.Ask),
	}
}

// RecentTrades returns the newest trades for a market from storage.
func (v *Venue) RecentTrades(mktID string, limit int) ([]engine.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.registry.Exists(mktID) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, mktID)
	}
	return v.store.LoadRecentTrades(mktID, limit)
}
