package triage

import "github.com/triagedesk/triage-service/internal/domain"

// categoryLexicon pairs a category with the lowercase keywords that vote for it.
type categoryLexicon struct {
	Category domain.TicketCategory
	Keywords []string
}

// defaultLexicons is scanned in order; on equal hit counts the earlier category wins.
var defaultLexicons = []categoryLexicon{
	{domain.CategoryUser, []string{
		"login", "senha", "acesso", "cadastro", "minha conta", "perfil",
		"não consigo", "nao consigo", "dúvida", "duvida", "como faço", "como faco",
	}},
	{domain.CategorySystemic, []string{
		"erro", "error", "falha", "bug", "exception", "exceção", "excecao",
		"undefined", "crash", "travou", "quebrou", "não funciona", "nao funciona",
	}},
	{domain.CategoryBilling, []string{
		"fatura", "cobrança", "cobranca", "pagamento", "boleto", "cartão", "cartao",
		"nota fiscal", "reembolso", "assinatura", "valor cobrado",
	}},
	{domain.CategoryPerformance, []string{
		"lento", "lentidão", "lentidao", "demora", "demorando", "timeout",
		"travando", "performance", "desempenho",
	}},
	{domain.CategorySecurity, []string{
		"invasão", "invasao", "hacker", "vazamento", "phishing", "fraude",
		"suspeito", "não autorizado", "nao autorizado", "segurança", "seguranca", "lgpd",
	}},
	{domain.CategoryIntegration, []string{
		"integração", "integracao", "webhook", "sincronização", "sincronizacao",
		"importação", "importacao", "exportação", "exportacao", "linkedin", "calendário", "calendario",
	}},
	{domain.CategorySuggestion, []string{
		"sugestão", "sugestao", "sugiro", "seria bom", "seria ótimo", "seria otimo",
		"melhoria", "gostaria que", "nova funcionalidade",
	}},
}

var highPriorityKeywords = []string{
	"urgente", "importante", "bloqueado", "bloqueando", "impedindo", "parado", "prazo",
}

var criticalPriorityKeywords = []string{
	"fora do ar", "todos os usuários", "todos os usuarios", "perda de dados",
	"dados perdidos", "sistema caiu", "crítico", "critico", "produção parada", "producao parada",
}
