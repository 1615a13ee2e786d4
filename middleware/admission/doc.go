// Package admission fornece o porteiro HTTP (net/http) que fica na frente de um
// handler qualquer e decide, por request, entre encaminhar ou rejeitar.
//
// Visão geral (camadas):
//
//   - domain: identidade do cliente, janela fixa, blocklist e decisão (sem net/http)
//   - application: normalização do endereço, pipeline de decisão, concorrência
//   - infra: rate limiter em memória, blocklist e seus persisters, seed, stats
//   - admission (este pacote): Gate (middleware), respostas 403/429, Server
//
// Fluxo por request:
//
//  1. Resolve a identidade (X-Forwarded-For, X-Real-IP, socket)
//  2. Path com fragmento proibido: bloqueia, persiste e responde 403
//  3. Identidade na blocklist: responde 403
//  4. Janela fixa estourada: bloqueia, persiste e responde 429
//  5. Caso contrário, chama o próximo handler (ex: reverse proxy)
//
// Bloqueios não expiram durante a vida do processo.
package admission
