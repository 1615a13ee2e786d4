// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
//   - RateLimiter: janela fixa por identidade, em memória, com janitor
//   - Blocklist: conjunto (endereço, família) com Save via domain.Persister
//   - FilePersister / BadgerPersister / RedisPersister: armazenamento da blocklist
//   - LoadSeed: endpoints e endereços estáticos (YAML ou texto)
//   - MemoryStatsStore / RedisStatsStore: estatísticas best-effort
//   - ChanPool: semáforo simples para limite de concorrência
package infra
