package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"twstock/internal/economy"
	"twstock/internal/fetch"
	"twstock/internal/names"
	"twstock/internal/portfolio"
	"twstock/internal/quote"
	"twstock/internal/symbol"
	"twstock/internal/trade"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	store   *portfolio.Store
	trades  *trade.Orchestrator
	quotes  trade.QuoteSource
	names   *names.Resolver
	economy economy.Service
	pending *portfolio.PendingActions
	log     *logrus.Logger
}

func NewHandler(store *portfolio.Store, trades *trade.Orchestrator, quotes trade.QuoteSource,
	resolver *names.Resolver, eco economy.Service, log *logrus.Logger) *Handler {
	return &Handler{
		store:   store,
		trades:  trades,
		quotes:  quotes,
		names:   resolver,
		economy: eco,
		pending: portfolio.NewPendingActions(),
		log:     log,
	}
}

// GetQuote serves a fresh quote for a raw user-typed symbol, with the best
// available display name attached.
func (h *Handler) GetQuote(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	ctx := c.Request.Context()

	q, err := h.quotes.Fetch(ctx, sym)
	if err != nil {
		h.quoteError(c, sym, err)
		return
	}

	name := h.displayName(ctx, sym, q)
	c.JSON(http.StatusOK, gin.H{
		"symbol":          sym,
		"name":            name,
		"exchange":        q.Exchange,
		"currency":        q.Currency,
		"currency_symbol": quote.CurrencySymbol(q.Currency),
		"price":           q.Price,
		"change":          q.Change,
		"percent_change":  q.PercentChange,
		"day_high":        q.DayHigh,
		"day_low":         q.DayLow,
		"volume":          q.Volume,
		"volume_display":  quote.FormatVolume(q.Volume),
		"names_pending":   h.names.Fetching(),
	})
}

// displayName resolves the best display name for sym: cached name, then the
// upstream-provided one (cached back), then a single directory lookup (cached
// back), then the symbol itself.
func (h *Handler) displayName(ctx context.Context, sym string, q *quote.Quote) string {
	if name, ok := h.names.Lookup(sym); ok {
		return name
	}
	if symbol.IsTaiwan(sym) {
		if q.Name != "" && !strings.EqualFold(q.Name, symbol.QuerySymbol(sym)) && !strings.EqualFold(q.Name, sym) {
			h.names.Add(symbol.NameKey(sym), q.Name)
			return q.Name
		}
		if name, ok := h.names.ResolveOne(ctx, sym); ok {
			h.names.Add(symbol.NameKey(sym), name)
			return name
		}
	}
	if q.Name != "" {
		return q.Name
	}
	return sym
}

// GetPortfolio returns the player's holdings mapping and balance.
func (h *Handler) GetPortfolio(c *gin.Context) {
	player := c.Param("player")
	c.JSON(http.StatusOK, gin.H{
		"player":   player,
		"holdings": h.store.Holdings(player),
		"balance":  h.economy.Balance(player).StringFixed(2),
	})
}

// GetPosition returns share count and cost basis for one (player, symbol).
func (h *Handler) GetPosition(c *gin.Context) {
	player := c.Param("player")
	sym := symbol.Normalize(c.Param("symbol"))
	c.JSON(http.StatusOK, gin.H{
		"symbol":       sym,
		"name":         h.names.Display(sym),
		"shares":       h.store.ShareCount(player, sym),
		"average_cost": h.store.AverageCost(player, sym).StringFixed(2),
		"total_cost":   h.store.TotalCost(player, sym).StringFixed(2),
	})
}

// GetOverview values the whole portfolio at current prices. Symbols whose
// quote cannot be fetched are listed as skipped rather than failing the
// overview.
func (h *Handler) GetOverview(c *gin.Context) {
	player := c.Param("player")
	ctx := c.Request.Context()

	type position struct {
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		Shares        int64  `json:"shares"`
		AverageCost   string `json:"average_cost"`
		TotalCost     string `json:"total_cost"`
		Price         string `json:"price"`
		CurrentValue  string `json:"current_value"`
		Profit        string `json:"profit"`
		ProfitPercent string `json:"profit_percent"`
	}

	positions := []position{}
	skipped := []string{}
	totalCost := decimal.Zero
	totalValue := decimal.Zero

	for sym, shares := range h.store.Holdings(player) {
		if shares <= 0 {
			continue
		}
		q, err := h.quotes.Fetch(ctx, sym)
		if err != nil {
			h.log.Warnf("overview: skipping %s: %v", sym, err)
			skipped = append(skipped, sym)
			continue
		}
		price := decimal.NewFromFloat(q.Price)
		cost := h.store.TotalCost(player, sym)
		value := price.Mul(decimal.NewFromInt(shares))
		profit := value.Sub(cost)

		profitPct := decimal.Zero
		if cost.Sign() > 0 {
			profitPct = profit.Div(cost).Mul(decimal.NewFromInt(100))
		}

		positions = append(positions, position{
			Symbol:        sym,
			Name:          h.names.Display(sym),
			Shares:        shares,
			AverageCost:   h.store.AverageCost(player, sym).StringFixed(2),
			TotalCost:     cost.StringFixed(2),
			Price:         price.StringFixed(2),
			CurrentValue:  value.StringFixed(2),
			Profit:        profit.StringFixed(2),
			ProfitPercent: profitPct.StringFixed(2),
		})
		totalCost = totalCost.Add(cost)
		totalValue = totalValue.Add(value)
	}

	c.JSON(http.StatusOK, gin.H{
		"player":           player,
		"positions":        positions,
		"skipped":          skipped,
		"total_investment": totalCost.StringFixed(2),
		"total_value":      totalValue.StringFixed(2),
		"total_profit":     totalValue.Sub(totalCost).StringFixed(2),
	})
}

type addStockRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// AddStock validates a symbol against live market data, registers it in the
// player's portfolio, and arms a pending purchase so the next input is taken
// as the quantity to buy.
func (h *Handler) AddStock(c *gin.Context) {
	player := c.Param("player")
	var req addStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid add-stock body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.addStock(c, player, req.Symbol)
}

func (h *Handler) addStock(c *gin.Context, player, rawSymbol string) {
	sym := symbol.Normalize(rawSymbol)
	ctx := c.Request.Context()

	q, err := h.quotes.Fetch(ctx, sym)
	if err != nil {
		h.quoteError(c, sym, err)
		return
	}

	if held := h.store.ShareCount(player, sym); held > 0 {
		h.pending.Arm(player, portfolio.PendingAction{Kind: portfolio.PendingBuy, Symbol: sym})
		c.JSON(http.StatusOK, gin.H{
			"status":  "already_held",
			"symbol":  sym,
			"shares":  held,
			"message": "symbol already in portfolio; next input is taken as a purchase quantity, or 'cancel'",
		})
		return
	}

	h.store.Register(player, sym)
	h.pending.Arm(player, portfolio.PendingAction{Kind: portfolio.PendingBuy, Symbol: sym})
	c.JSON(http.StatusOK, gin.H{
		"status":  "added",
		"symbol":  sym,
		"name":    h.displayName(ctx, sym, q),
		"message": "next input is taken as a purchase quantity, or 'cancel'",
	})
}

type tradeRequest struct {
	Player string `json:"player" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
	Shares int64  `json:"shares"`
}

func (h *Handler) Buy(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sym := symbol.Normalize(req.Symbol)
	receipt, err := h.trades.Buy(c.Request.Context(), req.Player, sym, req.Shares)
	if err != nil {
		h.tradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "bought", "receipt": receipt})
}

func (h *Handler) Sell(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sym := symbol.Normalize(req.Symbol)
	receipt, err := h.trades.Sell(c.Request.Context(), req.Player, sym, req.Shares)
	if err != nil {
		h.tradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sold", "receipt": receipt})
}

type sellAllRequest struct {
	Player string `json:"player" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
}

func (h *Handler) SellAll(c *gin.Context) {
	var req sellAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sym := symbol.Normalize(req.Symbol)
	receipt, err := h.trades.SellAll(c.Request.Context(), req.Player, sym)
	if err != nil {
		h.tradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sold", "receipt": receipt})
}

type inputRequest struct {
	Text string `json:"text" binding:"required"`
}

// PostInput consumes the player's pending action with one chat-equivalent
// input. The action is consumed no matter what the input was: "cancel"
// cancels, a valid value executes, anything else reports the parse failure.
func (h *Handler) PostInput(c *gin.Context) {
	player := c.Param("player")
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)

	action, ok := h.pending.Consume(player)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	if strings.EqualFold(text, "cancel") {
		c.JSON(http.StatusOK, gin.H{"handled": true, "status": "cancelled"})
		return
	}

	switch action.Kind {
	case portfolio.PendingNewSymbol:
		h.addStock(c, player, text)

	case portfolio.PendingBuy, portfolio.PendingSell:
		shares, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"handled": true, "error": "quantity must be a whole number"})
			return
		}
		var receipt *trade.Receipt
		if action.Kind == portfolio.PendingBuy {
			receipt, err = h.trades.Buy(c.Request.Context(), player, action.Symbol, shares)
		} else {
			receipt, err = h.trades.Sell(c.Request.Context(), player, action.Symbol, shares)
		}
		if err != nil {
			h.tradeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"handled": true, "receipt": receipt})

	default:
		c.JSON(http.StatusOK, gin.H{"handled": false})
	}
}

// ArmSell arms a pending sale so the player's next input is taken as the
// number of shares to sell. Requires an existing position.
func (h *Handler) ArmSell(c *gin.Context) {
	player := c.Param("player")
	sym := symbol.Normalize(c.Param("symbol"))

	held := h.store.ShareCount(player, sym)
	if held <= 0 {
		h.tradeError(c, &trade.SharesError{Held: held, Requested: 1})
		return
	}
	h.pending.Arm(player, portfolio.PendingAction{Kind: portfolio.PendingSell, Symbol: sym})
	c.JSON(http.StatusOK, gin.H{
		"status":  "awaiting_quantity",
		"symbol":  sym,
		"shares":  held,
		"message": "next input is taken as a sale quantity, or 'cancel'",
	})
}

// ArmNewSymbol arms the awaiting-new-symbol state so the player's next input
// is taken as a ticker to add.
func (h *Handler) ArmNewSymbol(c *gin.Context) {
	player := c.Param("player")
	h.pending.Arm(player, portfolio.PendingAction{Kind: portfolio.PendingNewSymbol})
	c.JSON(http.StatusOK, gin.H{"status": "awaiting_symbol", "message": "next input is taken as a ticker, or 'cancel'"})
}

// Reload re-reads the holdings file and the name cache from disk.
func (h *Handler) Reload(c *gin.Context) {
	if err := h.store.Reload(); err != nil {
		h.log.Errorf("holdings reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "holdings reload failed"})
		return
	}
	if err := h.names.Reload(); err != nil {
		h.log.Errorf("name cache reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "name cache reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (h *Handler) quoteError(c *gin.Context, sym string, err error) {
	switch {
	case errors.Is(err, fetch.ErrRateLimited):
		h.log.Errorf("quote for %s rate limited", sym)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "upstream rate limit reached; wait a while before retrying",
		})
	default:
		h.log.Warnf("quote for %s unavailable: %v", sym, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "no market data for " + sym + "; check the symbol or try again later",
		})
	}
}

func (h *Handler) tradeError(c *gin.Context, err error) {
	var fundsErr *trade.FundsError
	var sharesErr *trade.SharesError
	switch {
	case errors.Is(err, trade.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "share quantity must be a positive integer"})
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "insufficient funds",
			"required":  fundsErr.Required.StringFixed(2),
			"available": fundsErr.Available.StringFixed(2),
		})
	case errors.As(err, &sharesErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "insufficient shares",
			"held":      sharesErr.Held,
			"requested": sharesErr.Requested,
		})
	case errors.Is(err, fetch.ErrRateLimited):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "upstream rate limit reached; wait a while before retrying",
		})
	case errors.Is(err, quote.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data unavailable; trade cancelled"})
	default:
		h.log.Errorf("trade failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error; contact an operator"})
	}
}
