// Package store implements the Cache & History Store on Redis.
//
// Layout (prefix defaults to "db:"):
//   - <prefix>latest:snapshot      STRING, TTL = latest TTL
//   - <prefix>latest:processlist   STRING, TTL = latest TTL
//   - <prefix>ts:snapshot          ZSET scored by snapshot ms, trimmed to the series window
//   - <prefix>pub:snapshot         pub/sub channel
//   - <prefix>pub:processlist      pub/sub channel
//
// Series members are "<uuidv7>|<json>" so equal timestamps are kept and
// ties sort by insertion order.
package store
