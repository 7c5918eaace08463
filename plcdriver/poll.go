package plcdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yatesdr/plcio/logix"
)

func chunkNames(names []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(names); i += size {
		end := i + size
		if end > len(names) {
			end = len(names)
		}
		chunks = append(chunks, names[i:end])
	}
	return chunks
}

// readChunk checks out one connection, reads a batch of tags on it, and
// always returns the connection to the pool — on the success path and the
// error path alike.
func (d *LogixDriver) readChunk(names []string) ([]*logix.TagValue, error) {
	client, err := d.checkout()
	if err != nil {
		return nil, fmt.Errorf("plcdriver: checkout: %w", err)
	}
	defer d.checkin(client)
	return client.Read(names...)
}

// Poll reads every named tag and returns one Observation per tag whose value
// passes the validity predicate. Up to TagsPerRequest tags are read
// synchronously on a single connection; larger batches are split into
// TagsPerRequest-sized chunks and fanned out across a bounded pool of
// Threads workers, mirroring the original collector's single-connection read
// versus ThreadPool(threads) dispatch. Every observation in a single Poll
// call shares one timestamp taken once after every chunk has returned.
func (d *LogixDriver) Poll(ctx context.Context, tagNames []string) ([]Observation, error) {
	if len(tagNames) == 0 {
		return nil, nil
	}

	var allValues []*logix.TagValue

	if len(tagNames) <= TagsPerRequest {
		values, err := d.readChunk(tagNames)
		if err != nil {
			return nil, fmt.Errorf("plcdriver: poll: %w", err)
		}
		allValues = values
	} else {
		chunks := chunkNames(tagNames, TagsPerRequest)
		jobs := make(chan []string, len(chunks))
		for _, c := range chunks {
			jobs <- c
		}
		close(jobs)

		workers := Threads
		if workers > len(chunks) {
			workers = len(chunks)
		}

		resultsCh := make(chan []*logix.TagValue, len(chunks))
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for names := range jobs {
					values, err := d.readChunk(names)
					if err != nil {
						d.log.Danger("plcdriver: read chunk of %d tags failed: %v", len(names), err)
						continue
					}
					resultsCh <- values
				}
			}()
		}
		wg.Wait()
		close(resultsCh)

		for values := range resultsCh {
			allValues = append(allValues, values...)
		}
	}

	now := time.Now()
	return valuesToObservations(allValues, now), nil
}
