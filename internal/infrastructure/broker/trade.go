package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

// Rough conversion rates used when the account holds no cash in the
// requested currency.
var exchangeRates = map[[2]string]float64{
	{"HKD", "USD"}: 1 / 7.8,
	{"USD", "HKD"}: 7.8,
	{"CNY", "USD"}: 1 / 7.2,
	{"USD", "CNY"}: 7.2,
}

func (a *Adapter) TotalBalance(ctx context.Context, currency string) (float64, error) {
	resp, err := a.sendRequest(ctx, "GET", "/v1/asset/account", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Data struct {
			List []struct {
				Currency  string `json:"currency"`
				TotalCash string `json:"total_cash"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}

	type balance struct {
		currency string
		cash     float64
	}
	var balances []balance
	for _, b := range result.Data.List {
		cash, err := strconv.ParseFloat(b.TotalCash, 64)
		if err != nil {
			continue
		}
		balances = append(balances, balance{currency: b.Currency, cash: cash})
	}

	for _, b := range balances {
		if b.currency == currency {
			return b.cash, nil
		}
	}
	for _, b := range balances {
		if rate, ok := exchangeRates[[2]string{b.currency, currency}]; ok {
			return b.cash * rate, nil
		}
	}
	return 0, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	resp, err := a.sendRequest(ctx, "GET", "/v1/asset/stock_positions", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Channels []struct {
				Positions []struct {
					Symbol            string `json:"symbol"`
					Quantity          string `json:"quantity"`
					AvailableQuantity string `json:"available_quantity"`
					CostPrice         string `json:"cost_price"`
					MarketValue       string `json:"market_value"`
				} `json:"stock_info"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	var positions []domain.Position
	for _, ch := range result.Data.Channels {
		for _, p := range ch.Positions {
			quantity, _ := strconv.ParseInt(p.Quantity, 10, 64)
			available, _ := strconv.ParseInt(p.AvailableQuantity, 10, 64)
			costPrice, _ := strconv.ParseFloat(p.CostPrice, 64)
			marketValue, err := strconv.ParseFloat(p.MarketValue, 64)
			if err != nil || marketValue <= 0 {
				// Some channels omit market value; estimate from cost.
				marketValue = costPrice * float64(quantity)
			}
			positions = append(positions, domain.Position{
				Symbol:      p.Symbol,
				Quantity:    quantity,
				Available:   available,
				CostPrice:   costPrice,
				MarketValue: marketValue,
			})
		}
	}
	return positions, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, price float64, orderType domain.OrderType) (string, error) {
	apiSide := "Buy"
	if side == domain.SideSell {
		apiSide = "Sell"
	}
	apiType := "LO"
	if orderType == domain.OrderMarket {
		apiType = "MO"
	}

	payload := map[string]interface{}{
		"symbol":             symbol,
		"side":               apiSide,
		"order_type":         apiType,
		"submitted_quantity": strconv.FormatInt(quantity, 10),
		"time_in_force":      "Day",
		"outside_rth":        "RTH_ONLY",
	}
	if orderType != domain.OrderMarket && price > 0 {
		payload["submitted_price"] = strconv.FormatFloat(price, 'f', 2, 64)
	}

	resp, err := a.sendRequest(ctx, "POST", "/v1/trade/order", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", err
	}
	if result.Data.OrderID == "" {
		return "", fmt.Errorf("order not accepted: %s", string(resp))
	}
	return result.Data.OrderID, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	path := "/v1/trade/order?order_id=" + url.QueryEscape(orderID)
	_, err := a.sendRequest(ctx, "DELETE", path, nil)
	return err
}
