package services

import "errors"

// Domain errors. Lock-protocol violations and validation failures are
// surfaced to the caller verbatim and never retried; every rejection
// leaves the ledger exactly as it was.
var (
	ErrObligationNotFound   = errors.New("obrigação não encontrada")
	ErrEventNotFound        = errors.New("evento não encontrado")
	ErrClosingNotFound      = errors.New("fechamento não encontrado")
	ErrDateClosed           = errors.New("data já fechada para lançamentos")
	ErrPriorDatesOpen       = errors.New("existem dias anteriores com movimento ainda em aberto")
	ErrLaterDatesClosed     = errors.New("existem dias posteriores já fechados")
	ErrOverPayment          = errors.New("pagamento excede o saldo em aberto")
	ErrInvalidSchedule      = errors.New("numeração de parcelas inválida")
	ErrNegativeAmount       = errors.New("valor negativo ou inválido")
	ErrOutstandingBelowZero = errors.New("saldo em aberto negativo")
	ErrInvalidState         = errors.New("transição de estado inválida")
	ErrInvalidAdjustment    = errors.New("tipo de ajuste inválido")
	ErrConflict             = errors.New("conflito de concorrência; reenvie com a mesma chave de idempotência")
)
