package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type WorkflowResult struct {
	Success  bool
	Latency  time.Duration
	ErrorMsg string
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
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	duration := flag.Int("duration", 30, "Test duration in seconds")
	port := flag.String("port", "5000", "Node HTTP port")
	variety := flag.String("variety", "albión", "Strawberry variety to trace")
	adminAddress := flag.String("admin", "0x0000000000000000000000000000000000000001", "Bootstrap admin address")
	flag.Parse()

	recordsDir := "./records"
	os.MkdirAll(recordsDir, 0755)

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(recordsDir, fmt.Sprintf(
		"concurrency_%s_w%d_d%ds_nodes-%d.csv",
		timestamp, *workers, *duration, *nodes,
	))

	baseURL := fmt.Sprintf("http://127.0.0.1:%s", *port)

	fmt.Println("========================================")
	fmt.Println("   CONCURRENCY BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Nodes:      %d\n", *nodes)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Duration:   %ds\n", *duration)
	fmt.Printf("Node URL:   %s\n", baseURL)
	fmt.Printf("Variety:    %s\n", *variety)
	fmt.Printf("Output:     %s\n", filename)
	fmt.Println("========================================")
	fmt.Println("")

	if err := registerParticipants(NewHTTPClient(baseURL), *adminAddress); err != nil {
		fmt.Printf("Participant registration failed: %v\n", err)
		return
	}

	stopChan := make(chan struct{})
	resultsChan := make(chan WorkflowResult, *workers*10)

	var totalReqs int64
	var successReqs int64
	var failedReqs int64
	var totalLatency int64
	var minLatency int64 = 1<<63 - 1
	var maxLatency int64 = 0

	var wg sync.WaitGroup

	fmt.Println("Starting workers...")
	runID := time.Now().Unix()
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go worker(i, baseURL, *variety, runID, stopChan, resultsChan, &wg)
	}

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for result := range resultsChan {
			atomic.AddInt64(&totalReqs, 1)

			if result.Success {
				atomic.AddInt64(&successReqs, 1)
				latencyNs := result.Latency.Nanoseconds()
				atomic.AddInt64(&totalLatency, latencyNs)

				for {
					old := atomic.LoadInt64(&minLatency)
					if latencyNs >= old || atomic.CompareAndSwapInt64(&minLatency, old, latencyNs) {
						break
					}
				}

				for {
					old := atomic.LoadInt64(&maxLatency)
					if latencyNs <= old || atomic.CompareAndSwapInt64(&maxLatency, old, latencyNs) {
						break
					}
				}
			} else {
				atomic.AddInt64(&failedReqs, 1)
			}

			if totalReqs%10 == 0 {
				fmt.Printf("\rWorkflows: %d | Success: %d | Failed: %d",
					totalReqs, successReqs, failedReqs)
			}
		}
	}()

	startTime := time.Now()
	fmt.Printf("Running benchmark for %d seconds...\n", *duration)
	time.Sleep(time.Duration(*duration) * time.Second)

	close(stopChan)
	wg.Wait()
	close(resultsChan)
	collectorWg.Wait()

	elapsed := time.Since(startTime)

	tps := float64(totalReqs) / elapsed.Seconds()
	avgLatency := time.Duration(0)
	if successReqs > 0 {
		avgLatency = time.Duration(totalLatency / successReqs)
	}

	fmt.Println("\n\n========================================")
	fmt.Println("   BENCHMARK RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Total Workflows:   %d\n", totalReqs)
	fmt.Printf("Successful:        %d (%.2f%%)\n", successReqs, float64(successReqs)/float64(totalReqs)*100)
	fmt.Printf("Failed:            %d (%.2f%%)\n", failedReqs, float64(failedReqs)/float64(totalReqs)*100)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Printf("Throughput (TPS):  %.2f\n", tps)
	fmt.Printf("Avg Latency:       %v\n", avgLatency)
	fmt.Printf("Min Latency:       %v\n", time.Duration(minLatency))
	fmt.Printf("Max Latency:       %v\n", time.Duration(maxLatency))
	fmt.Println("========================================")

	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Error creating file: %v\n", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{
		"Nodes", "Workers", "Duration_s",
		"Total_Workflows", "Successful", "Failed",
		"TPS", "Avg_Latency_ms", "Min_Latency_ms", "Max_Latency_ms",
	})

	writer.Write([]string{
		fmt.Sprintf("%d", *nodes),
		fmt.Sprintf("%d", *workers),
		fmt.Sprintf("%d", *duration),
		fmt.Sprintf("%d", totalReqs),
		fmt.Sprintf("%d", successReqs),
		fmt.Sprintf("%d", failedReqs),
		fmt.Sprintf("%.2f", tps),
		fmt.Sprintf("%.2f", float64(avgLatency.Milliseconds())),
		fmt.Sprintf("%.2f", float64(time.Duration(minLatency).Milliseconds())),
		fmt.Sprintf("%.2f", float64(time.Duration(maxLatency).Milliseconds())),
	})

	fmt.Printf("\nResults saved to: %s\n", filename)
}

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

func worker(id int, baseURL, variety string, runID int64, stopChan chan struct{}, resultsChan chan WorkflowResult, wg *sync.WaitGroup) {
	defer wg.Done()

	client := NewHTTPClient(baseURL)
	seq := 0

	for {
		select {
		case <-stopChan:
			return
		default:
			// Each workflow traces its own lot so workers never contend
			// over the same asset.
			lot := fmt.Sprintf("L-%d-w%d-%d", runID, id, seq)
			seq++

			start := time.Now()
			err := runWorkflow(client, variety, lot)
			latency := time.Since(start)

			result := WorkflowResult{
				Success: err == nil,
				Latency: latency,
			}
			if err != nil {
				result.ErrorMsg = err.Error()
			}

			resultsChan <- result
		}
	}
}

// runWorkflow pushes one lot through the full chain: store, plant, harvest,
// pack, wholesale, retail.
func runWorkflow(client *HTTPClient, variety, lot string) error {
	today := time.Now().Format("2006-01-02")

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
		return fmt.Errorf("store lot: %v", err)
	}
	if err := UnmarshalData(resp, nil); err != nil {
		return fmt.Errorf("store lot: %v", err)
	}

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
		return fmt.Errorf("plant lot: %v", err)
	}
	if err := UnmarshalData(resp, nil); err != nil {
		return fmt.Errorf("plant lot: %v", err)
	}

	resp, err = client.GET("/api/lotes/codigo/"+lot, producer)
	if err != nil {
		return fmt.Errorf("find lot: %v", err)
	}
	var found keyedAsset
	if err := UnmarshalData(resp, &found); err != nil {
		return fmt.Errorf("find lot: %v", err)
	}

	resp, err = client.POST("/api/cosechas", harvester, map[string]interface{}{
		"idLoteSemillas":         found.Key,
		"cosechaID":              "C-" + lot,
		"cantidadKilos":          120,
		"condicionesRecoleccion": "soleado",
		"tempDuranteCosecha":     18,
	})
	if err != nil {
		return fmt.Errorf("harvest: %v", err)
	}
	var commit CommitResult
	if err := UnmarshalData(resp, &commit); err != nil {
		return fmt.Errorf("harvest: %v", err)
	}
	var harvested keyedAsset
	if err := json.Unmarshal(commit.Data, &harvested); err != nil {
		return fmt.Errorf("harvest decode: %v", err)
	}

	packageIDs := []string{"P-" + lot + "-1", "P-" + lot + "-2"}
	resp, err = client.POST("/api/paquetes", packer, map[string]interface{}{
		"idCosecha":     harvested.Key,
		"tipoEmpaque":   "caja 500g",
		"centroEmpaque": "Centro Norte",
		"fechaEmpaque":  today,
		"paquetesIDs":   packageIDs,
	})
	if err != nil {
		return fmt.Errorf("pack: %v", err)
	}
	if err := UnmarshalData(resp, nil); err != nil {
		return fmt.Errorf("pack: %v", err)
	}

	resp, err = client.POST("/api/paquetes/compra-mayoreo", distributor, map[string]interface{}{
		"idCosecha": harvested.Key,
	})
	if err != nil {
		return fmt.Errorf("wholesale: %v", err)
	}
	if err := UnmarshalData(resp, nil); err != nil {
		return fmt.Errorf("wholesale: %v", err)
	}

	resp, err = client.POST("/api/paquetes/compra-menudeo", retailer, map[string]interface{}{
		"idPaquete": packageIDs[0],
	})
	if err != nil {
		return fmt.Errorf("retail: %v", err)
	}
	if err := UnmarshalData(resp, nil); err != nil {
		return fmt.Errorf("retail: %v", err)
	}

	return nil
}
