// Package domain define tipos e contratos da admissão de requests:
// identidade do cliente, janela fixa, entradas da blocklist e a decisão final.
//
// Este pacote não depende de implementações concretas. A intenção é permitir
// testes de unidade puros e desacoplar regras de detalhes de infraestrutura.
package domain
