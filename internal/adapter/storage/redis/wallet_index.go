package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/search/querystring"

	goredis "github.com/redis/go-redis/v9"
)

// fieldAll holds every token of a document regardless of field.
const fieldAll = "_all"

// searchableFields are the fields a query may be scoped to.
var searchableFields = map[string]bool{"id": true, "name": true, "description": true}

// maxTxAttempts bounds the optimistic retries of a document rewrite.
const maxTxAttempts = 32

// pruneScript drops postings whose id set is empty from the lexicon.
//
//	KEYS[1] lexicon, KEYS[2..] posting sets, ARGV[i] the posting of KEYS[i+1]
var pruneScript = goredis.NewScript(`
local removed = 0
for i = 2, #KEYS do
  if redis.call('SCARD', KEYS[i]) == 0 then
    redis.call('ZREM', KEYS[1], ARGV[i - 1])
    removed = removed + 1
  end
end
return removed
`)

// WalletIndex implements ports.WalletIndex as an inverted index in Redis.
//
// Layout under prefix p:
//
//	p doc:<id>             JSON document
//	p ids                  set of indexed ids
//	p term:<field>:<tok>   set of ids whose field contains tok
//	p lexicon              sorted set of "<field>:<tok>" used for prefix queries
//	p postings:<id>        set of "<field>:<tok>" the document is listed under
//
// Writes for one id are optimistic transactions watching p postings:<id>.
// Search unions posting sets, so on Redis Cluster the prefix must carry a
// hash tag, e.g. "{wallet}:", to keep every key in one slot.
type WalletIndex struct {
	client goredis.UniversalClient
	prefix string
}

// NewWalletIndex creates a Redis-backed wallet search index.
func NewWalletIndex(client goredis.UniversalClient, prefix string) *WalletIndex {
	if prefix == "" {
		prefix = "wallet:"
	}
	return &WalletIndex{client: client, prefix: prefix}
}

func (x *WalletIndex) docKey(id string) string { return x.prefix + "doc:" + id }
func (x *WalletIndex) idsKey() string { return x.prefix + "ids" }
func (x *WalletIndex) termPrefix() string { return x.prefix + "term:" }
func (x *WalletIndex) termKey(posting string) string { return x.termPrefix() + posting }
func (x *WalletIndex) lexKey() string { return x.prefix + "lexicon" }
func (x *WalletIndex) postingsKey(id string) string { return x.prefix + "postings:" + id }

// Index stores w and replaces whatever postings a previous version had.
func (x *WalletIndex) Index(ctx context.Context, w domain.Wallet) error {
	if w.ID == nil {
		return fmt.Errorf("index wallet: missing id")
	}
	id := strconv.FormatInt(*w.ID, 10)

	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("index wallet %s: encode: %w", id, err)
	}

	if err := x.rewrite(ctx, id, doc, analyze(w)); err != nil {
		return fmt.Errorf("index wallet %s: %w", id, err)
	}
	return nil
}

// Remove deletes the document with id. Unknown ids are ignored.
func (x *WalletIndex) Remove(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)
	if err := x.rewrite(ctx, key, nil, nil); err != nil {
		return fmt.Errorf("remove wallet %s: %w", key, err)
	}
	return nil
}

// rewrite replaces the document and postings of id in one transaction; a nil
// doc deletes them. The transaction is retried when another writer changes
// the postings of id between the read and the commit.
func (x *WalletIndex) rewrite(ctx context.Context, id string, doc []byte, postings []string) error {
	key := x.postingsKey(id)
	members := make([]interface{}, 0, len(postings))
	for _, p := range postings {
		members = append(members, p)
	}

	var dropped []string
	txf := func(tx *goredis.Tx) error {
		old, err := tx.SMembers(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("read postings: %w", err)
		}
		dropped = difference(old, postings)

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, p := range dropped {
				pipe.SRem(ctx, x.termKey(p), id)
			}
			pipe.Del(ctx, key)
			if doc == nil {
				pipe.Del(ctx, x.docKey(id))
				pipe.SRem(ctx, x.idsKey(), id)
				return nil
			}
			pipe.Set(ctx, x.docKey(id), doc, 0)
			pipe.SAdd(ctx, x.idsKey(), id)
			for _, p := range postings {
				pipe.SAdd(ctx, x.termKey(p), id)
				pipe.ZAdd(ctx, x.lexKey(), goredis.Z{Score: 0, Member: p})
			}
			if len(members) > 0 {
				pipe.SAdd(ctx, key, members...)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = x.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return err
	}
	return x.prune(ctx, dropped)
}

// prune removes postings that no document uses any more from the lexicon.
func (x *WalletIndex) prune(ctx context.Context, postings []string) error {
	if len(postings) == 0 {
		return nil
	}
	keys := make([]string, 0, len(postings)+1)
	args := make([]interface{}, 0, len(postings))
	keys = append(keys, x.lexKey())
	for _, p := range postings {
		keys = append(keys, x.termKey(p))
		args = append(args, p)
	}
	if err := pruneScript.Run(ctx, x.client, keys, args...).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("prune lexicon: %w", err)
	}
	return nil
}

// Search runs a query-string query and returns matches ordered by the number
// of matching clauses, then by id.
func (x *WalletIndex) Search(ctx context.Context, query string) ([]domain.Wallet, error) {
	q, err := querystring.Parse(query)
	if err != nil {
		return nil, err
	}
	for _, f := range q.Fields() {
		if !searchableFields[f] {
			return nil, fmt.Errorf("%w: unknown field %q", querystring.ErrInvalidQuery, f)
		}
	}

	universe, err := x.client.SMembers(ctx, x.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("search wallets: %w", err)
	}

	scores := make(map[string]int)
	if q.MatchesEverything() {
		for _, id := range universe {
			scores[id] = 0
		}
		return x.fetch(ctx, scores)
	}

	var (
		must, mustNot []map[string]struct{}
		should        []map[string]struct{}
	)
	for _, c := range q.Clauses {
		ids, err := x.clauseIDs(ctx, c, universe)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case querystring.Must:
			must = append(must, ids)
		case querystring.MustNot:
			mustNot = append(mustNot, ids)
		default:
			should = append(should, ids)
		}
	}

	// Should clauses only gate matching when nothing is required; a purely
	// negative query selects everything not excluded.
	shouldGates := len(must) == 0 && len(should) > 0

candidates:
	for _, id := range universe {
		for _, set := range mustNot {
			if _, ok := set[id]; ok {
				continue candidates
			}
		}
		score := 0
		for _, set := range must {
			if _, ok := set[id]; !ok {
				continue candidates
			}
			score++
		}
		matchedShould := 0
		for _, set := range should {
			if _, ok := set[id]; ok {
				matchedShould++
			}
		}
		if shouldGates && matchedShould == 0 {
			continue
		}
		scores[id] = score + matchedShould
	}

	return x.fetch(ctx, scores)
}

// clauseIDs returns the ids matching every term of c.
func (x *WalletIndex) clauseIDs(ctx context.Context, c querystring.Clause, universe []string) (map[string]struct{}, error) {
	field := c.Field
	if field == "" {
		field = fieldAll
	}

	if c.MatchAll {
		if c.Field == "" {
			return toSet(universe), nil
		}
		return x.prefixIDs(ctx, field, "")
	}

	var result map[string]struct{}
	for _, term := range c.Terms {
		var (
			ids map[string]struct{}
			err error
		)
		if term.Prefix {
			ids, err = x.prefixIDs(ctx, field, term.Text)
		} else {
			var members []string
			members, err = x.client.SMembers(ctx, x.termKey(field+":"+term.Text)).Result()
			ids = toSet(members)
		}
		if err != nil {
			return nil, fmt.Errorf("search wallets: %w", err)
		}
		if result == nil {
			result = ids
		} else {
			result = intersect(result, ids)
		}
		if len(result) == 0 {
			break
		}
	}
	if result == nil {
		result = map[string]struct{}{}
	}
	return result, nil
}

func (x *WalletIndex) prefixIDs(ctx context.Context, field, prefix string) (map[string]struct{}, error) {
	start := field + ":" + prefix
	postings, err := x.client.ZRangeByLex(ctx, x.lexKey(), &goredis.ZRangeBy{
		Min: "[" + start,
		Max: "[" + start + "\xff",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("expand prefix %q: %w", start, err)
	}
	if len(postings) == 0 {
		return map[string]struct{}{}, nil
	}
	keys := make([]string, len(postings))
	for i, p := range postings {
		keys[i] = x.termKey(p)
	}
	members, err := x.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("expand prefix %q: %w", start, err)
	}
	return toSet(members), nil
}

// fetch loads the documents for scored ids and orders them.
func (x *WalletIndex) fetch(ctx context.Context, scores map[string]int) ([]domain.Wallet, error) {
	results := make([]domain.Wallet, 0, len(scores))
	if len(scores) == 0 {
		return results, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = x.docKey(id)
	}

	docs, err := x.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch wallet documents: %w", err)
	}

	type hit struct {
		wallet domain.Wallet
		score  int
	}
	hits := make([]hit, 0, len(docs))
	for i, raw := range docs {
		s, ok := raw.(string)
		if !ok {
			// Removed between the id scan and the fetch.
			continue
		}
		var w domain.Wallet
		if err := json.Unmarshal([]byte(s), &w); err != nil {
			return nil, fmt.Errorf("decode wallet document %s: %w", ids[i], err)
		}
		hits = append(hits, hit{wallet: w, score: scores[ids[i]]})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].wallet.IDValue() < hits[j].wallet.IDValue()
	})
	for _, h := range hits {
		results = append(results, h.wallet)
	}
	return results, nil
}

// Clear drops every key owned by the index.
func (x *WalletIndex) Clear(ctx context.Context) error {
	iter := x.client.Scan(ctx, 0, x.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := x.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clear wallet index: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("clear wallet index: %w", err)
	}
	if len(batch) > 0 {
		if err := x.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clear wallet index: %w", err)
		}
	}
	return nil
}

// analyze returns the sorted, de-duplicated postings of w.
func analyze(w domain.Wallet) []string {
	seen := make(map[string]struct{})
	add := func(field, text string) {
		for _, tok := range querystring.Tokenize(text) {
			seen[field+":"+tok] = struct{}{}
			seen[fieldAll+":"+tok] = struct{}{}
		}
	}
	if w.ID != nil {
		add("id", strconv.FormatInt(*w.ID, 10))
	}
	add("name", w.Name)
	if w.Description != nil {
		add("description", *w.Description)
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func toSet(members []string) map[string]struct{} {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[string]struct{}, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// difference returns the elements of old missing from current.
func difference(old, current []string) []string {
	keep := toSet(current)
	var out []string
	for _, p := range old {
		if _, ok := keep[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
