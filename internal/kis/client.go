package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
)

// Client talks to the Korea Investment & Securities open API
type Client struct {
	baseURL     string
	appKey      string
	appSecret   string
	accountNo   string
	productCode string
	tokens      *TokenManager
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewClient builds a broker client. Credentials come from config or Vault.
func NewClient(baseURL, appKey, appSecret, accountNo, productCode string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		appKey:      appKey,
		appSecret:   appSecret,
		accountNo:   accountNo,
		productCode: productCode,
		tokens:      NewTokenManager(baseURL, appKey, appSecret, timeout),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.WithComponent("kis"),
	}
}

type apiHeader struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (h apiHeader) err() error {
	if h.RtCd == "0" || h.RtCd == "" {
		return nil
	}
	return &APIError{Code: h.MsgCd, Message: strings.TrimSpace(h.Msg1)}
}

func (c *Client) get(ctx context.Context, path, trID string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request %s: %w", path, err)
	}
	return c.do(req, trID, out)
}

func (c *Client) post(ctx context.Context, path, trID string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request %s: %w", path, err)
	}
	return c.do(req, trID, out)
}

func (c *Client) do(req *http.Request, trID string, out interface{}) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return fmt.Errorf("getting access token: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return fmt.Errorf("unauthorized on %s: %s", req.URL.Path, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d on %s: %s", resp.StatusCode, req.URL.Path, string(body))
	}

	var header apiHeader
	if err := json.Unmarshal(body, &header); err != nil {
		return fmt.Errorf("parsing response header from %s: %w", req.URL.Path, err)
	}
	if err := header.err(); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parsing response from %s: %w", req.URL.Path, err)
		}
	}
	return nil
}

// Quote fetches the live price for one symbol
func (c *Client) Quote(ctx context.Context, mkt market.ID, exchange, symbol string) (*Quote, error) {
	if mkt == market.KR {
		return c.domesticQuote(ctx, symbol)
	}
	return c.overseasQuote(ctx, exchange, symbol)
}

func (c *Client) domesticQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", symbol)

	var resp struct {
		apiHeader
		Output struct {
			Price     string `json:"stck_prpr"`
			Open      string `json:"stck_oprc"`
			High      string `json:"stck_hgpr"`
			Low       string `json:"stck_lwpr"`
			Volume    string `json:"acml_vol"`
			ChangePct string `json:"prdy_ctrt"`
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price", "FHKST01010100", params, &resp)
	if err != nil {
		return nil, fmt.Errorf("domestic quote %s: %w", symbol, err)
	}

	price := parseFloat(resp.Output.Price)
	if price <= 0 {
		return nil, fmt.Errorf("domestic quote %s: empty price", symbol)
	}
	return &Quote{
		Symbol:    symbol,
		Exchange:  "KRX",
		Price:     price,
		Open:      parseFloat(resp.Output.Open),
		High:      parseFloat(resp.Output.High),
		Low:       parseFloat(resp.Output.Low),
		Volume:    parseInt(resp.Output.Volume),
		ChangePct: parseFloat(resp.Output.ChangePct),
		Time:      time.Now(),
	}, nil
}

func (c *Client) overseasQuote(ctx context.Context, exchange, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", exchange)
	params.Set("SYMB", symbol)

	var resp struct {
		apiHeader
		Output struct {
			Last   string `json:"last"`
			Open   string `json:"open"`
			High   string `json:"high"`
			Low    string `json:"low"`
			Volume string `json:"tvol"`
			Rate   string `json:"rate"`
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/overseas-price/v1/quotations/price", "HHDFS00000300", params, &resp)
	if err != nil {
		return nil, fmt.Errorf("overseas quote %s/%s: %w", exchange, symbol, err)
	}

	price := parseFloat(resp.Output.Last)
	if price <= 0 {
		return nil, fmt.Errorf("overseas quote %s/%s: empty price", exchange, symbol)
	}
	return &Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		Price:     price,
		Open:      parseFloat(resp.Output.Open),
		High:      parseFloat(resp.Output.High),
		Low:       parseFloat(resp.Output.Low),
		Volume:    parseInt(resp.Output.Volume),
		ChangePct: parseFloat(resp.Output.Rate),
		Time:      time.Now(),
	}, nil
}

// Rankings returns the market's most-traded symbols under maxPrice
func (c *Client) Rankings(ctx context.Context, mkt market.ID, maxPrice float64, limit int) ([]Ranked, error) {
	if mkt == market.KR {
		return c.domesticRankings(ctx, maxPrice, limit)
	}
	return c.overseasRankings(ctx, mkt, maxPrice, limit)
}

func (c *Client) domesticRankings(ctx context.Context, maxPrice float64, limit int) ([]Ranked, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_COND_SCR_DIV_CODE", "20171")
	params.Set("FID_INPUT_ISCD", "0000")
	params.Set("FID_DIV_CLS_CODE", "0")
	params.Set("FID_BLNG_CLS_CODE", "0")
	params.Set("FID_TRGT_CLS_CODE", "111111111")
	params.Set("FID_TRGT_EXLS_CLS_CODE", "000000")
	params.Set("FID_INPUT_PRICE_1", "0")
	if maxPrice > 0 {
		params.Set("FID_INPUT_PRICE_2", strconv.FormatFloat(maxPrice, 'f', 0, 64))
	} else {
		params.Set("FID_INPUT_PRICE_2", "")
	}
	params.Set("FID_VOL_CNT", "")

	var resp struct {
		apiHeader
		Output []struct {
			Symbol    string `json:"mksc_shrn_iscd"`
			Name      string `json:"hts_kor_isnm"`
			Price     string `json:"stck_prpr"`
			ChangePct string `json:"prdy_ctrt"`
			Volume    string `json:"acml_vol"`
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/volume-rank", "FHPST01710000", params, &resp)
	if err != nil {
		return nil, fmt.Errorf("domestic rankings: %w", err)
	}

	var out []Ranked
	for _, row := range resp.Output {
		price := parseFloat(row.Price)
		if price <= 0 || (maxPrice > 0 && price > maxPrice) {
			continue
		}
		out = append(out, Ranked{
			Symbol:    row.Symbol,
			Name:      row.Name,
			Exchange:  "KRX",
			Price:     price,
			ChangePct: parseFloat(row.ChangePct),
			Volume:    parseInt(row.Volume),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) overseasRankings(ctx context.Context, mkt market.ID, maxPrice float64, limit int) ([]Ranked, error) {
	info, ok := lookupMarket(mkt)
	if !ok {
		return nil, fmt.Errorf("unknown market %s", mkt)
	}

	var out []Ranked
	for _, exchange := range info.Exchanges {
		params := url.Values{}
		params.Set("AUTH", "")
		params.Set("EXCD", exchange)
		params.Set("NDAY", "0")
		params.Set("PRC1", "0")
		if maxPrice > 0 {
			params.Set("PRC2", strconv.FormatFloat(maxPrice, 'f', 4, 64))
		} else {
			params.Set("PRC2", "")
		}
		params.Set("VOL_RANG", "0")
		params.Set("KEYB", "")

		var resp struct {
			apiHeader
			Output2 []struct {
				Symbol    string `json:"symb"`
				Name      string `json:"name"`
				Last      string `json:"last"`
				Rate      string `json:"rate"`
				Volume    string `json:"tvol"`
			} `json:"output2"`
		}
		err := c.get(ctx, "/uapi/overseas-price/v1/quotations/inquire-search", "HHDFS76410000", params, &resp)
		if err != nil {
			// One exchange failing should not empty the whole market scan
			c.logger.Warn("overseas ranking failed", "exchange", exchange, "error", err)
			continue
		}

		for _, row := range resp.Output2 {
			price := parseFloat(row.Last)
			if price <= 0 || (maxPrice > 0 && price > maxPrice) {
				continue
			}
			out = append(out, Ranked{
				Symbol:    row.Symbol,
				Name:      row.Name,
				Exchange:  exchange,
				Price:     price,
				ChangePct: parseFloat(row.Rate),
				Volume:    parseInt(row.Volume),
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Balance returns cash plus all held positions, domestic and overseas
func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	bal := &Balance{}

	params := url.Values{}
	params.Set("CANO", c.accountNo)
	params.Set("ACNT_PRDT_CD", c.productCode)
	params.Set("AFHR_FLPR_YN", "N")
	params.Set("OFL_YN", "")
	params.Set("INQR_DVSN", "02")
	params.Set("UNPR_DVSN", "01")
	params.Set("FUND_STTL_ICLD_YN", "N")
	params.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	params.Set("PRCS_DVSN", "00")
	params.Set("CTX_AREA_FK100", "")
	params.Set("CTX_AREA_NK100", "")

	var dom struct {
		apiHeader
		Output1 []struct {
			Symbol    string `json:"pdno"`
			Name      string `json:"prdt_name"`
			Quantity  string `json:"hldg_qty"`
			AvgPrice  string `json:"pchs_avg_pric"`
			Current   string `json:"prpr"`
			EvalAmt   string `json:"evlu_amt"`
			ProfitPct string `json:"evlu_pfls_rt"`
		} `json:"output1"`
		Output2 []struct {
			Cash string `json:"dnca_tot_amt"`
		} `json:"output2"`
	}
	err := c.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", "TTTC8434R", params, &dom)
	if err != nil {
		return nil, fmt.Errorf("domestic balance: %w", err)
	}

	if len(dom.Output2) > 0 {
		bal.CashKRW = parseFloat(dom.Output2[0].Cash)
	}
	for _, row := range dom.Output1 {
		qty := parseInt(row.Quantity)
		if qty <= 0 {
			continue
		}
		bal.Positions = append(bal.Positions, Position{
			Symbol:       row.Symbol,
			Name:         row.Name,
			Market:       market.KR,
			Exchange:     "KRX",
			Quantity:     qty,
			AvgBuyPrice:  parseFloat(row.AvgPrice),
			CurrentPrice: parseFloat(row.Current),
			EvalAmount:   parseFloat(row.EvalAmt),
			ProfitPct:    parseFloat(row.ProfitPct),
		})
	}

	overseas, err := c.overseasPositions(ctx)
	if err != nil {
		// Domestic accounts without overseas enrollment fail here, keep going
		c.logger.Warn("overseas balance unavailable", "error", err)
	} else {
		bal.Positions = append(bal.Positions, overseas...)
	}
	return bal, nil
}

func (c *Client) overseasPositions(ctx context.Context) ([]Position, error) {
	params := url.Values{}
	params.Set("CANO", c.accountNo)
	params.Set("ACNT_PRDT_CD", c.productCode)
	params.Set("OVRS_EXCG_CD", "")
	params.Set("TR_CRCY_CD", "")
	params.Set("CTX_AREA_FK200", "")
	params.Set("CTX_AREA_NK200", "")

	var resp struct {
		apiHeader
		Output1 []struct {
			Symbol    string `json:"ovrs_pdno"`
			Name      string `json:"ovrs_item_name"`
			Exchange  string `json:"ovrs_excg_cd"`
			Quantity  string `json:"ovrs_cblc_qty"`
			AvgPrice  string `json:"pchs_avg_pric"`
			Current   string `json:"now_pric2"`
			EvalAmt   string `json:"ovrs_stck_evlu_amt"`
			ProfitPct string `json:"evlu_pfls_rt"`
		} `json:"output1"`
	}
	err := c.get(ctx, "/uapi/overseas-stock/v1/trading/inquire-balance", "TTTS3012R", params, &resp)
	if err != nil {
		return nil, err
	}

	var out []Position
	for _, row := range resp.Output1 {
		qty := parseInt(row.Quantity)
		if qty <= 0 {
			continue
		}
		out = append(out, Position{
			Symbol:       row.Symbol,
			Name:         row.Name,
			Market:       marketForExchange(row.Exchange),
			Exchange:     row.Exchange,
			Quantity:     qty,
			AvgBuyPrice:  parseFloat(row.AvgPrice),
			CurrentPrice: parseFloat(row.Current),
			EvalAmount:   parseFloat(row.EvalAmt),
			ProfitPct:    parseFloat(row.ProfitPct),
		})
	}
	return out, nil
}

// AvailableCash returns integrated-margin orderable amounts. When the
// margin inquiry is unavailable the plain balance cash is returned.
func (c *Client) AvailableCash(ctx context.Context) (*CashSummary, error) {
	params := url.Values{}
	params.Set("CANO", c.accountNo)
	params.Set("ACNT_PRDT_CD", c.productCode)
	params.Set("CMA_EVLU_AMT_ICLD_YN", "N")
	params.Set("WCRC_FRCR_DVSN_CD", "01")
	params.Set("FWEX_CTRT_FRCR_DVSN_CD", "01")

	var resp struct {
		apiHeader
		Output struct {
			KRWOrderable string `json:"ord_psbl_krw_amt"`
			USDOrderable string `json:"ord_psbl_frcr_amt"`
			TotalKRW     string `json:"tot_asst_amt"`
			FxRate       string `json:"frst_bltn_exrt"`
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-account-balance", "CTRP6548R", params, &resp)
	if err != nil {
		bal, berr := c.Balance(ctx)
		if berr != nil {
			return nil, fmt.Errorf("integrated margin: %w (balance fallback: %v)", err, berr)
		}
		return &CashSummary{KRWAvailable: bal.CashKRW, TotalKRW: bal.CashKRW}, nil
	}

	summary := &CashSummary{
		KRWAvailable: parseFloat(resp.Output.KRWOrderable),
		USDAvailable: parseFloat(resp.Output.USDOrderable),
	}
	rate := parseFloat(resp.Output.FxRate)
	if rate <= 0 {
		rate = 1400
	}
	summary.TotalKRW = summary.KRWAvailable + summary.USDAvailable*rate
	return summary, nil
}

// PlaceOrder submits a cash order
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("order %s: non-positive quantity %d", req.Symbol, req.Quantity)
	}
	if req.Market == market.KR {
		return c.placeDomesticOrder(ctx, req)
	}
	return c.placeOverseasOrder(ctx, req)
}

func (c *Client) placeDomesticOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	trID := "TTTC0802U" // buy
	if req.Side == Sell {
		trID = "TTTC0801U"
	}

	ordDvsn := "00" // limit
	price := strconv.FormatFloat(req.Price, 'f', 0, 64)
	if req.Kind == MarketOrder {
		ordDvsn = "01"
		price = "0"
	}

	body := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": c.productCode,
		"PDNO":         req.Symbol,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      strconv.FormatInt(req.Quantity, 10),
		"ORD_UNPR":     price,
	}

	var resp struct {
		apiHeader
		Output struct {
			OrderNo     string `json:"ODNO"`
			OrderBranch string `json:"KRX_FWDG_ORD_ORGNO"`
			OrderTime   string `json:"ORD_TMD"`
		} `json:"output"`
	}
	if err := c.post(ctx, "/uapi/domestic-stock/v1/trading/order-cash", trID, body, &resp); err != nil {
		return nil, fmt.Errorf("domestic %s order %s: %w", req.Side, req.Symbol, err)
	}

	c.logger.Info("domestic order accepted",
		"symbol", req.Symbol, "side", string(req.Side), "qty", req.Quantity, "order_no", resp.Output.OrderNo)
	return &OrderResult{
		OrderNo:     resp.Output.OrderNo,
		OrderBranch: resp.Output.OrderBranch,
		Time:        time.Now(),
	}, nil
}

var overseasOrderTrIDs = map[string]map[OrderSide]string{
	"NASD": {Buy: "TTTT1002U", Sell: "TTTT1006U"},
	"NYSE": {Buy: "TTTT1002U", Sell: "TTTT1006U"},
	"AMEX": {Buy: "TTTT1002U", Sell: "TTTT1006U"},
	"TKSE": {Buy: "TTTS0308U", Sell: "TTTS0307U"},
	"SEHK": {Buy: "TTTS1002U", Sell: "TTTS1001U"},
	"SHAA": {Buy: "TTTS0202U", Sell: "TTTS1005U"},
	"SZAA": {Buy: "TTTS0305U", Sell: "TTTS0304U"},
}

func (c *Client) placeOverseasOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	byExchange, ok := overseasOrderTrIDs[req.Exchange]
	if !ok {
		return nil, fmt.Errorf("overseas order %s: unsupported exchange %s", req.Symbol, req.Exchange)
	}
	trID := byExchange[req.Side]

	// Overseas orders are always limit orders; the engine prices them
	// at the live quote.
	if req.Price <= 0 {
		return nil, fmt.Errorf("overseas order %s: missing limit price", req.Symbol)
	}

	body := map[string]string{
		"CANO":           c.accountNo,
		"ACNT_PRDT_CD":   c.productCode,
		"OVRS_EXCG_CD":   req.Exchange,
		"PDNO":           req.Symbol,
		"ORD_QTY":        strconv.FormatInt(req.Quantity, 10),
		"OVRS_ORD_UNPR":  strconv.FormatFloat(req.Price, 'f', 4, 64),
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":       "00",
	}

	var resp struct {
		apiHeader
		Output struct {
			OrderNo     string `json:"ODNO"`
			OrderBranch string `json:"KRX_FWDG_ORD_ORGNO"`
			OrderTime   string `json:"ORD_TMD"`
		} `json:"output"`
	}
	if err := c.post(ctx, "/uapi/overseas-stock/v1/trading/order", trID, body, &resp); err != nil {
		return nil, fmt.Errorf("overseas %s order %s/%s: %w", req.Side, req.Exchange, req.Symbol, err)
	}

	c.logger.Info("overseas order accepted",
		"symbol", req.Symbol, "exchange", req.Exchange, "side", string(req.Side),
		"qty", req.Quantity, "price", req.Price, "order_no", resp.Output.OrderNo)
	return &OrderResult{
		OrderNo:     resp.Output.OrderNo,
		OrderBranch: resp.Output.OrderBranch,
		Time:        time.Now(),
	}, nil
}

// CancelOrder cancels the unfilled remainder of an order
func (c *Client) CancelOrder(ctx context.Context, ord PendingOrder) error {
	if ord.Market == market.KR {
		body := map[string]string{
			"CANO":              c.accountNo,
			"ACNT_PRDT_CD":      c.productCode,
			"KRX_FWDG_ORD_ORGNO": ord.OrderBranch,
			"ORGN_ODNO":         ord.OrderNo,
			"ORD_DVSN":          "00",
			"RVSE_CNCL_DVSN_CD": "02", // cancel
			"ORD_QTY":           "0",  // 0 with QTY_ALL cancels the remainder
			"ORD_UNPR":          "0",
			"QTY_ALL_ORD_YN":    "Y",
		}
		if err := c.post(ctx, "/uapi/domestic-stock/v1/trading/order-rvsecncl", "TTTC0803U", body, nil); err != nil {
			return fmt.Errorf("cancel domestic order %s: %w", ord.OrderNo, err)
		}
		return nil
	}

	body := map[string]string{
		"CANO":          c.accountNo,
		"ACNT_PRDT_CD":  c.productCode,
		"OVRS_EXCG_CD":  ord.Exchange,
		"PDNO":          ord.Symbol,
		"ORGN_ODNO":     ord.OrderNo,
		"RVSE_CNCL_DVSN_CD": "02",
		"ORD_QTY":       strconv.FormatInt(ord.Quantity-ord.FilledQty, 10),
		"OVRS_ORD_UNPR": "0",
	}
	if err := c.post(ctx, "/uapi/overseas-stock/v1/trading/order-rvsecncl", "TTTT1004U", body, nil); err != nil {
		return fmt.Errorf("cancel overseas order %s: %w", ord.OrderNo, err)
	}
	return nil
}

// PendingOrders lists unfilled orders across domestic and overseas books
func (c *Client) PendingOrders(ctx context.Context) ([]PendingOrder, error) {
	var out []PendingOrder

	params := url.Values{}
	params.Set("CANO", c.accountNo)
	params.Set("ACNT_PRDT_CD", c.productCode)
	params.Set("INQR_DVSN_1", "0")
	params.Set("INQR_DVSN_2", "0")
	params.Set("CTX_AREA_FK100", "")
	params.Set("CTX_AREA_NK100", "")

	var dom struct {
		apiHeader
		Output []struct {
			OrderNo     string `json:"odno"`
			OrderBranch string `json:"ord_gno_brno"`
			Symbol      string `json:"pdno"`
			SideCode    string `json:"sll_buy_dvsn_cd"` // 01 sell, 02 buy
			Quantity    string `json:"ord_qty"`
			FilledQty   string `json:"tot_ccld_qty"`
			Price       string `json:"ord_unpr"`
			OrderTime   string `json:"ord_tmd"` // HHMMSS
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-psbl-rvsecncl", "TTTC8036R", params, &dom)
	if err != nil {
		return nil, fmt.Errorf("domestic pending orders: %w", err)
	}
	for _, row := range dom.Output {
		side := Buy
		if row.SideCode == "01" {
			side = Sell
		}
		out = append(out, PendingOrder{
			OrderNo:     row.OrderNo,
			OrderBranch: row.OrderBranch,
			Market:      market.KR,
			Exchange:    "KRX",
			Symbol:      row.Symbol,
			Side:        side,
			Quantity:    parseInt(row.Quantity),
			FilledQty:   parseInt(row.FilledQty),
			Price:       parseFloat(row.Price),
			OrderedAt:   todayAt(row.OrderTime),
		})
	}

	overseas, err := c.overseasPendingOrders(ctx)
	if err != nil {
		c.logger.Warn("overseas pending orders unavailable", "error", err)
		return out, nil
	}
	return append(out, overseas...), nil
}

func (c *Client) overseasPendingOrders(ctx context.Context) ([]PendingOrder, error) {
	params := url.Values{}
	params.Set("CANO", c.accountNo)
	params.Set("ACNT_PRDT_CD", c.productCode)
	params.Set("OVRS_EXCG_CD", "")
	params.Set("SORT_SQN", "DS")
	params.Set("CTX_AREA_FK200", "")
	params.Set("CTX_AREA_NK200", "")

	var resp struct {
		apiHeader
		Output []struct {
			OrderNo   string `json:"odno"`
			Symbol    string `json:"pdno"`
			Exchange  string `json:"ovrs_excg_cd"`
			SideCode  string `json:"sll_buy_dvsn_cd"`
			Quantity  string `json:"ft_ord_qty"`
			FilledQty string `json:"ft_ccld_qty"`
			Price     string `json:"ft_ord_unpr3"`
			OrderDate string `json:"ord_dt"`  // YYYYMMDD
			OrderTime string `json:"ord_tmd"` // HHMMSS
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/overseas-stock/v1/trading/inquire-nccs", "TTTS3018R", params, &resp)
	if err != nil {
		return nil, err
	}

	var out []PendingOrder
	for _, row := range resp.Output {
		side := Buy
		if row.SideCode == "01" {
			side = Sell
		}
		out = append(out, PendingOrder{
			OrderNo:   row.OrderNo,
			Market:    marketForExchange(row.Exchange),
			Exchange:  row.Exchange,
			Symbol:    row.Symbol,
			Side:      side,
			Quantity:  parseInt(row.Quantity),
			FilledQty: parseInt(row.FilledQty),
			Price:     parseFloat(row.Price),
			OrderedAt: parseOrderStamp(row.OrderDate, row.OrderTime),
		})
	}
	return out, nil
}

// LotSize returns the minimum order unit for a symbol, falling back to
// the per-exchange default when the product inquiry fails.
func (c *Client) LotSize(ctx context.Context, exchange, symbol string) (int64, error) {
	if exchange == "KRX" || exchange == "" {
		return 1, nil
	}

	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", exchange)
	params.Set("SYMB", symbol)

	var resp struct {
		apiHeader
		Output struct {
			TradeUnit string `json:"vnit"`
		} `json:"output"`
	}
	err := c.get(ctx, "/uapi/overseas-price/v1/quotations/price-detail", "HHDFS76200200", params, &resp)
	if err != nil {
		return DefaultLotSize(exchange), nil
	}
	if unit := parseInt(resp.Output.TradeUnit); unit > 0 {
		return unit, nil
	}
	return DefaultLotSize(exchange), nil
}

func lookupMarket(id market.ID) (market.Info, bool) {
	for _, m := range market.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return market.Info{}, false
}

func marketForExchange(exchange string) market.ID {
	switch exchange {
	case "TKSE":
		return market.JP
	case "SHAA", "SZAA":
		return market.CN
	case "SEHK":
		return market.HK
	case "KRX", "":
		return market.KR
	default:
		return market.US
	}
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Some endpoints report quantities with a decimal point
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func todayAt(hhmmss string) time.Time {
	now := time.Now()
	if len(hhmmss) != 6 {
		return now
	}
	hh, _ := strconv.Atoi(hhmmss[0:2])
	mm, _ := strconv.Atoi(hhmmss[2:4])
	ss, _ := strconv.Atoi(hhmmss[4:6])
	return time.Date(now.Year(), now.Month(), now.Day(), hh, mm, ss, 0, now.Location())
}

func parseOrderStamp(yyyymmdd, hhmmss string) time.Time {
	if len(yyyymmdd) != 8 {
		return todayAt(hhmmss)
	}
	stamp, err := time.ParseInLocation("20060102150405", yyyymmdd+hhmmss, time.Local)
	if err != nil {
		return todayAt(hhmmss)
	}
	return stamp
}
