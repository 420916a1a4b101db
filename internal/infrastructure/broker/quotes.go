package broker

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/stock_risk_engine/internal/domain"
)

func (a *Adapter) GetQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	path := "/v1/quote/realtime?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	resp, err := a.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			List []struct {
				Symbol    string `json:"symbol"`
				LastDone  string `json:"last_done"`
				PrevClose string `json:"prev_close"`
			} `json:"secu_quote"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	quotes := make([]domain.Quote, 0, len(result.Data.List))
	for _, q := range result.Data.List {
		price, _ := strconv.ParseFloat(q.LastDone, 64)
		prevClose, _ := strconv.ParseFloat(q.PrevClose, 64)
		changePct := 0.0
		if prevClose > 0 {
			changePct = (price - prevClose) / prevClose * 100
		}
		quotes = append(quotes, domain.Quote{
			Symbol:    q.Symbol,
			Price:     price,
			ChangePct: changePct,
		})
	}
	return quotes, nil
}

func (a *Adapter) GetBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	path := "/v1/quote/candlesticks?symbol=" + url.QueryEscape(symbol) +
		"&period=day&count=" + strconv.Itoa(limit)
	resp, err := a.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			List []struct {
				Timestamp int64  `json:"timestamp"`
				Open      string `json:"open"`
				High      string `json:"high"`
				Low       string `json:"low"`
				Close     string `json:"close"`
				Volume    int64  `json:"volume"`
			} `json:"candlesticks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(result.Data.List))
	for _, c := range result.Data.List {
		open, _ := strconv.ParseFloat(c.Open, 64)
		high, _ := strconv.ParseFloat(c.High, 64)
		low, _ := strconv.ParseFloat(c.Low, 64)
		closePrice, _ := strconv.ParseFloat(c.Close, 64)
		bars = append(bars, domain.Bar{
			Date:   time.Unix(c.Timestamp, 0),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: float64(c.Volume),
		})
	}

	// The API should already return ascending bars; enforce the contract.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// --- WebSocket quote stream ---

func (a *Adapter) OnQuoteUpdate(callback func(symbol string, price float64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, callback)
}

// Subscribe dials the quote stream on first use and sends a subscribe frame
// for the symbols.
func (a *Adapter) Subscribe(symbols []string) error {
	a.mu.Lock()
	needDial := a.wsConn == nil
	a.mu.Unlock()

	if needDial {
		c, _, err := websocket.DefaultDialer.Dial(a.wsURL+"?token="+url.QueryEscape(a.accessToken), nil)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.wsConn = c
		a.mu.Unlock()
		go a.readLoop()
	}

	return a.sendSubscribe(symbols)
}

func (a *Adapter) sendSubscribe(symbols []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wsConn == nil {
		return nil
	}
	msg := map[string]interface{}{
		"op":       "subscribe",
		"symbols":  symbols,
		"sub_type": []string{"quote"},
	}
	return a.wsConn.WriteJSON(msg)
}

func (a *Adapter) readLoop() {
	defer close(a.wsDone)
	for {
		a.mu.Lock()
		conn := a.wsConn
		a.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("quote stream read error: %v", err)
			return
		}

		var push struct {
			Event string `json:"event"`
			Data  struct {
				Symbol   string `json:"symbol"`
				LastDone string `json:"last_done"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &push); err != nil {
			continue
		}
		if push.Event != "quote" || push.Data.Symbol == "" {
			continue
		}
		price, err := strconv.ParseFloat(push.Data.LastDone, 64)
		if err != nil || price <= 0 {
			continue
		}

		a.mu.Lock()
		callbacks := make([]func(string, float64), len(a.callbacks))
		copy(callbacks, a.callbacks)
		a.mu.Unlock()

		for _, cb := range callbacks {
			cb(push.Data.Symbol, price)
		}
	}
}

// Close shuts the quote stream down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wsConn != nil {
		err := a.wsConn.Close()
		a.wsConn = nil
		return err
	}
	return nil
}
