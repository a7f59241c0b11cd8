package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Result struct {
	Step        string
	Latency     time.Duration
	BlockHeight int64
}

type keyedAsset struct {
	Key string `json:"key"`
}

var (
	producer    = Caller{"0xBENCH-AGRICULTOR", "agricultor"}
	harvester   = Caller{"0xBENCH-COSECHA", "responsableCosecha"}
	packer      = Caller{"0xBENCH-EMPAQUE", "empaquetador"}
	distributor = Caller{"0xBENCH-DISTRIBUIDOR", "distribuidor"}
	retailer    = Caller{"0xBENCH-MINORISTA", "minorista"}
)

func main() {
	nodes := flag.Int("nodes", 4, "Number of consensus nodes (recorded in the output name)")
	iterations := flag.Int("n", 100, "Number of iterations")
	port := flag.String("port", "5000", "Node HTTP port")
	variety := flag.String("variety", "albión", "Strawberry variety to trace")
	adminAddress := flag.String("admin", "0x0000000000000000000000000000000000000001", "Bootstrap admin address")
	flag.Parse()

	recordsDir := "./records"
	os.MkdirAll(recordsDir, 0755)

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(recordsDir, fmt.Sprintf(
		"latency_%s_n%d_nodes-%d.csv",
		timestamp, *iterations, *nodes,
	))

	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Error creating file: %v\n", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"Iteration", "Step", "Latency_ms", "BlockHeight"})

	baseURL := fmt.Sprintf("http://127.0.0.1:%s", *port)
	client := NewHTTPClient(baseURL)

	fmt.Println("========================================")
	fmt.Println("   LATENCY BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Nodes:      %d\n", *nodes)
	fmt.Printf("Iterations: %d\n", *iterations)
	fmt.Printf("Node URL:   %s\n", baseURL)
	fmt.Printf("Variety:    %s\n", *variety)
	fmt.Printf("Output:     %s\n", filename)
	fmt.Println("========================================")
	fmt.Println("")

	if err := registerParticipants(client, *adminAddress); err != nil {
		fmt.Printf("Participant registration failed: %v\n", err)
		return
	}

	runID := time.Now().Unix()
	successCount := 0
	failCount := 0

	for i := 0; i < *iterations; i++ {
		fmt.Printf("\r[%d/%d] ", i+1, *iterations)

		lot := fmt.Sprintf("L-%d-%04d", runID, i)
		results, errMsg := runWorkflow(client, *variety, lot)
		if errMsg == "" {
			successCount++
			fmt.Print("✓")
			for _, r := range results {
				writer.Write([]string{
					strconv.Itoa(i + 1),
					r.Step,
					strconv.FormatInt(r.Latency.Milliseconds(), 10),
					strconv.FormatInt(r.BlockHeight, 10),
				})
			}
		} else {
			failCount++
			fmt.Printf("✗ %s\n", errMsg)
		}

		time.Sleep(50 * time.Millisecond)
	}

	fmt.Printf("\n\n========================================\n")
	fmt.Printf("Success: %d/%d\n", successCount, *iterations)
	if failCount > 0 {
		fmt.Printf("Failed:  %d\n", failCount)
	}
	fmt.Printf("Results: %s\n", filename)
	fmt.Println("========================================")
}

// registerParticipants puts every benchmark identity on the ledger. Reruns
// hit ALREADY_EXISTS, which is fine.
func registerParticipants(client *HTTPClient, adminAddress string) error {
	admin := Caller{adminAddress, "admin"}
	participants := []Caller{producer, harvester, packer, distributor, retailer}

	for _, p := range participants {
		resp, err := client.POST("/api/usuarios", admin, map[string]interface{}{
			"nombre":          "Benchmark " + p.Role,
			"metamaskAddress": p.Address,
			"rol":             p.Role,
		})
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
			return fmt.Errorf("register %s: HTTP %d", p.Role, resp.StatusCode)
		}
	}
	return nil
}

// runWorkflow traces one lot from storage to the point of sale and times
// each ledger operation.
func runWorkflow(client *HTTPClient, variety, lot string) ([]Result, string) {
	var results []Result
	totalStart := time.Now()
	today := time.Now().Format("2006-01-02")

	// 1. Store the seed lot
	start := time.Now()
	resp, err := client.POST("/api/lotes", producer, map[string]interface{}{
		"lote":      lot,
		"variedad":  variety,
		"toneladas": 2.5,
		"condicionesAlmacenamiento": map[string]interface{}{
			"temperatura": 4,
			"humedad":     60,
		},
	})
	if err != nil {
		return results, fmt.Sprintf("Store Lot: %v", err)
	}
	var commit CommitResult
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Store Lot: %v", err)
	}
	results = append(results, Result{"Store Lot", time.Since(start), commit.BlockHeight})

	// 2. Plant it
	start = time.Now()
	resp, err = client.POST("/api/lotes/sembrar", producer, map[string]interface{}{
		"variedad": variety,
		"lote":     lot,
		"condicionesSiembra": map[string]interface{}{
			"lugar":                 "Invernadero 3",
			"fechaSiembra":          today,
			"insumosUsados":         "sustrato de coco",
			"tratamientosAplicados": "ninguno",
		},
	})
	if err != nil {
		return results, fmt.Sprintf("Plant Lot: %v", err)
	}
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Plant Lot: %v", err)
	}
	results = append(results, Result{"Plant Lot", time.Since(start), commit.BlockHeight})

	// 3. Resolve the lot's ledger key
	start = time.Now()
	resp, err = client.GET("/api/lotes/codigo/"+lot, producer)
	if err != nil {
		return results, fmt.Sprintf("Find Lot: %v", err)
	}
	var found keyedAsset
	if err := UnmarshalData(resp, &found); err != nil {
		return results, fmt.Sprintf("Find Lot: %v", err)
	}
	results = append(results, Result{"Find Lot", time.Since(start), 0})

	// 4. Harvest
	start = time.Now()
	resp, err = client.POST("/api/cosechas", harvester, map[string]interface{}{
		"idLoteSemillas":         found.Key,
		"cosechaID":              "C-" + lot,
		"cantidadKilos":          120,
		"condicionesRecoleccion": "soleado",
		"tempDuranteCosecha":     18,
	})
	if err != nil {
		return results, fmt.Sprintf("Harvest: %v", err)
	}
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Harvest: %v", err)
	}
	var harvested keyedAsset
	if err := json.Unmarshal(commit.Data, &harvested); err != nil {
		return results, fmt.Sprintf("Harvest (decode): %v", err)
	}
	results = append(results, Result{"Harvest", time.Since(start), commit.BlockHeight})

	// 5. Pack two packages
	start = time.Now()
	packageIDs := []string{"P-" + lot + "-1", "P-" + lot + "-2"}
	resp, err = client.POST("/api/paquetes", packer, map[string]interface{}{
		"idCosecha":     harvested.Key,
		"tipoEmpaque":   "caja 500g",
		"centroEmpaque": "Centro Norte",
		"fechaEmpaque":  today,
		"paquetesIDs":   packageIDs,
	})
	if err != nil {
		return results, fmt.Sprintf("Pack: %v", err)
	}
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Pack: %v", err)
	}
	results = append(results, Result{"Pack", time.Since(start), commit.BlockHeight})

	// 6. Wholesale purchase by the distributor
	start = time.Now()
	resp, err = client.POST("/api/paquetes/compra-mayoreo", distributor, map[string]interface{}{
		"idCosecha": harvested.Key,
	})
	if err != nil {
		return results, fmt.Sprintf("Wholesale: %v", err)
	}
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Wholesale: %v", err)
	}
	results = append(results, Result{"Wholesale", time.Since(start), commit.BlockHeight})

	// 7. Retail purchase of one package
	start = time.Now()
	resp, err = client.POST("/api/paquetes/compra-menudeo", retailer, map[string]interface{}{
		"idPaquete": packageIDs[0],
	})
	if err != nil {
		return results, fmt.Sprintf("Retail: %v", err)
	}
	if err := UnmarshalData(resp, &commit); err != nil {
		return results, fmt.Sprintf("Retail: %v", err)
	}
	results = append(results, Result{"Retail", time.Since(start), commit.BlockHeight})

	results = append(results, Result{"Complete Workflow", time.Since(totalStart), 0})

	return results, ""
}
