// Command client is a minimal CLI driver for the fenrir gateway's wire
// protocol: it places, cancels, and amends orders over a raw TCP
// connection and prints execution/error reports as they arrive.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/fxpt"
	fenrirNet "fenrir/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9090", "address of the fenrir gateway")
	owner := flag.String("owner", "", "account/username (compulsory)")
	action := flag.String("action", "place", "action to perform: place, cancel, amend")

	symbol := flag.Uint("symbol", 1, "symbol token")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit or market")
	tifStr := flag.String("tif", "gtc", "time in force: gtc, ioc, fok, day")
	price := flag.Float64("price", 100.0, "limit price")
	qtyStr := flag.String("qty", "10", "quantity or comma-separated list (e.g. 10,20,50)")
	clientOrderID := flag.String("coid", "", "client order id (optional)")

	orderID := flag.String("order-id", "", "order id, required for cancel/amend")
	newPrice := flag.Float64("new-price", 0, "amend: new limit price (0 to leave unchanged)")
	newQty := flag.Float64("new-qty", 0, "amend: new quantity (0 to leave unchanged)")

	flag.Parse()

	if *owner == "" {
		fmt.Println("error: -owner is compulsory")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := fxpt.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = fxpt.Sell
	}
	orderType := fxpt.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		orderType = fxpt.MarketOrder
	}
	tif := parseTIF(*tifStr)

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			err := sendPlaceOrder(conn, *owner, fxpt.Symbol(*symbol), side, orderType, tif, *price, q, *clientOrderID)
			if err != nil {
				log.Printf("failed to place order (qty %s): %v", q, err)
			} else {
				fmt.Printf("-> sent %s order: symbol=%d qty=%s @ %.4f\n", strings.ToUpper(*sideStr), *symbol, q, *price)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("error: -order-id is required for cancel")
		}
		if err := sendCancelOrder(conn, *orderID); err != nil {
			log.Printf("failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> sent cancel for order %s\n", *orderID)
		}

	case "amend":
		if *orderID == "" {
			log.Fatal("error: -order-id is required for amend")
		}
		if err := sendAmendOrder(conn, *orderID, *newPrice, *newQty); err != nil {
			log.Printf("failed to send amend: %v", err)
		} else {
			fmt.Printf("-> sent amend for order %s\n", *orderID)
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for reports... (press Ctrl+C to exit)")
	select {}
}

func parseTIF(s string) fxpt.TimeInForce {
	switch strings.ToLower(s) {
	case "ioc":
		return fxpt.IOC
	case "fok":
		return fxpt.FOK
	case "day":
		return fxpt.Day
	default:
		return fxpt.GTC
	}
}

// parseQuantities splits a comma-separated list of decimal quantities.
func parseQuantities(input string) []string {
	parts := strings.Split(input, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := strconv.ParseFloat(p, 64); err != nil {
			log.Printf("warning: invalid quantity '%s', skipping", p)
			continue
		}
		result = append(result, p)
	}
	return result
}

func sendPlaceOrder(conn net.Conn, owner string, symbol fxpt.Symbol, side fxpt.Side, orderType fxpt.OrderType, tif fxpt.TimeInForce, price float64, qtyStr string, coid string) error {
	qty, _ := strconv.ParseFloat(qtyStr, 64)

	body := make([]byte, 0, fenrirNet.NewOrderMessageHeaderLen+len(coid)+len(owner))
	put32 := func(v uint32) {
		body = append(body, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	put64 := func(v uint64) {
		for i := 7; i >= 0; i-- {
			body = append(body, byte(v>>(8*uint(i))))
		}
	}

	put32(uint32(symbol))
	body = append(body, byte(side), byte(orderType), byte(tif))
	put64(uint64(fxpt.PxFromFloat(price)))
	put64(uint64(fxpt.QtyFromFloat(qty)))
	body = append(body, byte(len(coid)), byte(len(owner)))
	body = append(body, []byte(coid)...)
	body = append(body, []byte(owner)...)

	buf := make([]byte, 0, fenrirNet.BaseMessageHeaderLen+len(body))
	buf = append(buf, byte(fenrirNet.NewOrder>>8), byte(fenrirNet.NewOrder))
	buf = append(buf, body...)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, orderID string) error {
	buf := make([]byte, 0, fenrirNet.BaseMessageHeaderLen+1+len(orderID))
	buf = append(buf, byte(fenrirNet.CancelOrder>>8), byte(fenrirNet.CancelOrder))
	buf = append(buf, byte(len(orderID)))
	buf = append(buf, []byte(orderID)...)

	_, err := conn.Write(buf)
	return err
}

func sendAmendOrder(conn net.Conn, orderID string, newPrice, newQty float64) error {
	buf := make([]byte, 0, fenrirNet.BaseMessageHeaderLen+1+len(orderID)+18)
	buf = append(buf, byte(fenrirNet.AmendOrder>>8), byte(fenrirNet.AmendOrder))
	buf = append(buf, byte(len(orderID)))
	buf = append(buf, []byte(orderID)...)

	put64 := func(v uint64) {
		for i := 7; i >= 0; i-- {
			buf = append(buf, byte(v>>(8*uint(i))))
		}
	}

	if newPrice > 0 {
		buf = append(buf, 1)
		put64(uint64(fxpt.PxFromFloat(newPrice)))
	} else {
		buf = append(buf, 0)
		put64(0)
	}
	if newQty > 0 {
		buf = append(buf, 1)
		put64(uint64(fxpt.QtyFromFloat(newQty)))
	} else {
		buf = append(buf, 0)
		put64(0)
	}

	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report messages from the
// gateway: a fixed header followed by the length-prefixed order ID and
// error string.
func readReports(conn net.Conn) {
	const fixedHeaderLen = 1 + 4 + 1 + 1 + 8 + 8 + 8 + 1 + 2

	for {
		header := make([]byte, fixedHeaderLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := fenrirNet.ReportMessageType(header[0])
		symbol := binary.BigEndian.Uint32(header[1:5])
		side := fxpt.Side(header[5])
		liquidity := header[6]
		timestamp := binary.BigEndian.Uint64(header[7:15])
		qty := fxpt.Qty(binary.BigEndian.Uint64(header[15:23]))
		price := fxpt.Px(binary.BigEndian.Uint64(header[23:31]))
		orderIDLen := int(header[31])
		errLen := int(binary.BigEndian.Uint16(header[32:34]))

		tail := make([]byte, orderIDLen+errLen)
		if orderIDLen+errLen > 0 {
			if _, err := io.ReadFull(conn, tail); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
		}
		orderID := string(tail[:orderIDLen])
		errStr := string(tail[orderIDLen:])

		if msgType == fenrirNet.ErrorReport {
			fmt.Printf("\n[ERROR] order=%s ts=%d %s\n", orderID, timestamp, errStr)
			continue
		}

		sideStr := "BUY"
		if side == fxpt.Sell {
			sideStr = "SELL"
		}
		liquidityStr := "maker"
		if liquidity == 1 {
			liquidityStr = "taker"
		}
		fmt.Printf("\n[FILL] order=%s symbol=%d side=%s qty=%s price=%s liquidity=%s\n",
			orderID, symbol, sideStr, qty, price, liquidityStr)
	}
}
