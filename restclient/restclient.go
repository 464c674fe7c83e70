// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package restclient is the distributed-cache retrieval adapter: an HTTP
// client for a grid gateway serving cells, whole rows and verified-block
// descriptors. Positions the gateway cannot serve, and transport failures,
// both surface as absence; the pipeline decides what to do about missing
// data.
package restclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/gridlight-io/gridlight/appclient"
	"github.com/gridlight-io/gridlight/matrix"
)

type Config struct {
	URL          string        `koanf:"url"`
	Timeout      time.Duration `koanf:"timeout"`
	PollInterval time.Duration `koanf:"poll-interval"`
}

var DefaultConfig = Config{
	URL:          "",
	Timeout:      10 * time.Second,
	PollInterval: 5 * time.Second,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "base URL of the grid gateway, e.g. http://localhost:7007")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "per-request timeout for gateway calls")
	f.Duration(prefix+".poll-interval", DefaultConfig.PollInterval, "how often to poll the gateway for new verified blocks")
}

// Client implements appclient.GridFetcher over the gateway's REST API.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(config Config) (*Client, error) {
	if !(strings.HasPrefix(config.URL, "http://") || strings.HasPrefix(config.URL, "https://")) {
		return nil, fmt.Errorf("protocol prefix 'http://' or 'https://' must be specified for grid gateway; got '%s'", config.URL)
	}
	return &Client{
		url:    strings.TrimSuffix(config.URL, "/"),
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type cellResponse struct {
	Row   uint32        `json:"row"`
	Col   uint16        `json:"col"`
	Data  string        `json:"data"`
	Proof []common.Hash `json:"proof"`
}

type cellsResponse struct {
	Cells []cellResponse `json:"cells"`
}

type rowResponse struct {
	Index uint32 `json:"index"`
	Data  string `json:"data"`
}

type rowsResponse struct {
	Rows []rowResponse `json:"rows"`
}

func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error with status %d returned by gateway: %s",
			res.StatusCode, http.StatusText(res.StatusCode))
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}

// FetchCells requests the given positions and partitions the response into
// retrieved cells and still-absent positions. A failed call leaves every
// position absent.
func (c *Client) FetchCells(ctx context.Context, blockNumber uint32, positions []matrix.Position) ([]matrix.Cell, []matrix.Position) {
	if len(positions) == 0 {
		return nil, nil
	}

	refs := make([]string, len(positions))
	for i, position := range positions {
		refs[i] = fmt.Sprintf("%d:%d", position.Row, position.Col)
	}
	url := fmt.Sprintf("%s/v1/cells/%d?positions=%s", c.url, blockNumber, strings.Join(refs, ","))

	var response cellsResponse
	if err := c.get(ctx, url, &response); err != nil {
		log.Warn("Cell fetch from grid gateway failed", "blockNumber", blockNumber, "err", err)
		absent := make([]matrix.Position, len(positions))
		copy(absent, positions)
		return nil, absent
	}

	found := make(map[matrix.Position]matrix.Cell, len(response.Cells))
	for _, entry := range response.Cells {
		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil || len(data) != matrix.ChunkSize {
			continue
		}
		cell := matrix.Cell{
			Position: matrix.Position{Row: entry.Row, Col: entry.Col},
			Proof:    entry.Proof,
		}
		copy(cell.Data[:], data)
		found[cell.Position] = cell
	}

	var fetched []matrix.Cell
	var unfetched []matrix.Position
	for _, position := range positions {
		if cell, ok := found[position]; ok {
			fetched = append(fetched, cell)
		} else {
			unfetched = append(unfetched, position)
		}
	}
	return fetched, unfetched
}

// FetchRows requests whole rows, returning one entry per requested index in
// the same order, nil for rows the gateway could not serve.
func (c *Client) FetchRows(ctx context.Context, blockNumber uint32, dims matrix.Dimensions, rows []uint32) [][]byte {
	result := make([][]byte, len(rows))
	if len(rows) == 0 {
		return result
	}

	refs := make([]string, len(rows))
	for i, row := range rows {
		refs[i] = strconv.FormatUint(uint64(row), 10)
	}
	url := fmt.Sprintf("%s/v1/rows/%d?rows=%s", c.url, blockNumber, strings.Join(refs, ","))

	var response rowsResponse
	if err := c.get(ctx, url, &response); err != nil {
		log.Warn("Row fetch from grid gateway failed", "blockNumber", blockNumber, "err", err)
		return result
	}

	found := make(map[uint32][]byte, len(response.Rows))
	for _, entry := range response.Rows {
		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil || len(data) != dims.RowSize() {
			continue
		}
		found[entry.Index] = data
	}
	for i, row := range rows {
		result[i] = found[row]
	}
	return result
}

// FetchBlock retrieves the verified-block descriptor for the given number.
// The second return is false while the gateway has not verified that block
// yet.
func (c *Client) FetchBlock(ctx context.Context, number uint32) (*appclient.BlockVerified, bool, error) {
	url := fmt.Sprintf("%s/v1/blocks/%d", c.url, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("HTTP error with status %d returned by gateway: %s",
			res.StatusCode, http.StatusText(res.StatusCode))
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, false, err
	}
	var block appclient.BlockVerified
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, false, err
	}
	return &block, true, nil
}

// BlockWatcher polls the gateway for newly verified blocks and feeds them to
// the driver channel in block-number order.
type BlockWatcher struct {
	client   *Client
	next     uint32
	interval time.Duration
}

func NewBlockWatcher(client *Client, firstBlock uint32, interval time.Duration) *BlockWatcher {
	return &BlockWatcher{client: client, next: firstBlock, interval: interval}
}

func (w *BlockWatcher) Watch(ctx context.Context, blocks chan<- appclient.BlockVerified) {
	defer close(blocks)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		block, ok, err := w.client.FetchBlock(ctx, w.next)
		if err != nil {
			log.Warn("Block descriptor fetch failed", "blockNumber", w.next, "err", err)
		}
		if ok {
			select {
			case blocks <- *block:
				w.next++
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
