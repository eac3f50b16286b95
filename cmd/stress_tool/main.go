package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/pkg/utils"
	"sync"
	"time"
)

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type result struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// 压测: 大量并发请求同时把同一个订单推进到 Accepted，只允许一个成功
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "服务地址")
	total := flag.Int("n", 2000, "并发请求数")
	flag.Parse()

	// 与服务端共用 JWT 配置
	config.LoadConfig()
	customerToken, _, err := utils.GenerateToken("CUST-STRESS", "customer", "Stress Customer")
	if err != nil {
		panic(err)
	}
	shopToken, _, err := utils.GenerateToken("SHOP-STRESS", "shop", "Stress Shop")
	if err != nil {
		panic(err)
	}

	// 1. 下单
	orderID := placeOrder(*baseURL, customerToken)
	if orderID == "" {
		return
	}

	fmt.Printf("开始压测：%d 个并发请求同时接单 (OrderID: %s)...\n", *total, orderID)
	time.Sleep(1 * time.Second)

	// 2. 并发状态转换
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[int]int)

	start := time.Now()
	for i := 0; i < *total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := acceptOrder(*baseURL, shopToken, orderID)
			mu.Lock()
			counts[status]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", *total)
	fmt.Printf("QPS: %.2f\n", float64(*total)/duration.Seconds())
	fmt.Printf("接单成功: %d (预期: 1)\n", counts[http.StatusOK])
	fmt.Printf("状态冲突: %d\n", counts[http.StatusConflict])
	for status, n := range counts {
		if status != http.StatusOK && status != http.StatusConflict {
			fmt.Printf("其他响应 %d: %d\n", status, n)
		}
	}
	fmt.Println("--------------------------------------------------")

	// 3. 校验最终状态与时间线
	verifyOrder(*baseURL, customerToken, orderID)
}

func placeOrder(baseURL, token string) string {
	payload := map[string]interface{}{
		"orderType":    "MaterialOrder",
		"customerRef":  "CUST-STRESS",
		"customerName": "Stress Customer",
		"shopRef":      "SHOP-STRESS",
		"shopName":     "Stress Shop",
		"items": []map[string]interface{}{
			{"productRef": "SKU-1", "productName": "压测商品", "quantity": 2, "unitPrice": "99.50"},
		},
	}
	res, status, err := post(baseURL+"/orders", token, payload)
	if err != nil || status != http.StatusOK {
		fmt.Printf("下单失败: status=%d err=%v\n", status, err)
		return ""
	}

	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(res.Data, &order); err != nil {
		fmt.Printf("解析响应失败: %v\n", err)
		return ""
	}
	return order.ID
}

func acceptOrder(baseURL, token, orderID string) int {
	_, status, err := post(fmt.Sprintf("%s/orders/%s/transition", baseURL, orderID), token,
		map[string]string{"status": "Accepted", "notes": "stress"})
	if err != nil {
		return 0
	}
	return status
}

func verifyOrder(baseURL, token, orderID string) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/orders/"+orderID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := httpClient.Do(req)
	if err != nil {
		fmt.Printf("查询订单失败: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var res result
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &res); err != nil {
		fmt.Printf("解析响应失败: %v\n", err)
		return
	}
	var order struct {
		Status   string            `json:"status"`
		Version  int64             `json:"version"`
		Timeline []json.RawMessage `json:"timeline"`
	}
	_ = json.Unmarshal(res.Data, &order)
	fmt.Printf("最终状态: %s, version: %d, 时间线条数: %d (预期: Accepted, 2, 2)\n",
		order.Status, order.Version, len(order.Timeline))
}

func post(url, token string, payload interface{}) (*result, int, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var res result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, resp.StatusCode, err
	}
	return &res, resp.StatusCode, nil
}
