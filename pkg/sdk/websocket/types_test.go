package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMiniTickerParse(t *testing.T) {
	// Binance miniTicker 官方推送格式
	raw := `{"e":"24hrMiniTicker","E":1672515782136,"s":"SHIBUSDT","c":"0.00000850","o":"0.00000820","h":"0.00000870","l":"0.00000810","v":"1000000000","q":"8500.00"}`

	var msg miniTickerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Symbol != "SHIBUSDT" {
		t.Fatalf("Symbol got=%s want=SHIBUSDT", msg.Symbol)
	}

	price, ok := msg.closePrice()
	if !ok || price != 0.0000085 {
		t.Fatalf("closePrice got=%v,%v want=0.0000085,true", price, ok)
	}
	if got := msg.baseVolume(); got != 1000000000 {
		t.Fatalf("baseVolume got=%v want=1000000000", got)
	}
	if got := msg.eventTime(); !got.Equal(time.UnixMilli(1672515782136)) {
		t.Fatalf("eventTime got=%v", got)
	}
}

func TestMiniTickerInvalidPrice(t *testing.T) {
	msg := miniTickerMessage{Close: "not-a-number"}
	if _, ok := msg.closePrice(); ok {
		t.Fatalf("无效价格不应解析成功")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := &Config{}
	cfg.normalize()
	if cfg.Endpoint != defaultEndpoint {
		t.Fatalf("Endpoint got=%s want=%s", cfg.Endpoint, defaultEndpoint)
	}
	if cfg.EventBufferSize != defaultEventBuffer || cfg.PongWait != defaultPongWait {
		t.Fatalf("默认值未填充: %+v", cfg)
	}
}
