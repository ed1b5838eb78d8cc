package features

// ExternalToCanonical - фиксированная таблица переименования полей формы аналитика
// в ключи, которые ожидает модель. Поля, которых здесь нет, молча отбрасываются.
var ExternalToCanonical = map[string]string{
	// Транзакция
	"fromBank":          "from_bank",
	"fromAccount":       KeyAccount,
	"toBank":            "to_bank_txn",
	"toAccount":         KeyBeneficiaryAccount,
	"amountReceived":    "amount_received",
	"receivingCurrency": "Receiving Currency",
	"amount":            KeyAmount,
	"paymentCurrency":   "Payment Currency",
	"paymentFormat":     "Payment Format",

	// Клиент (KYC)
	"fullName":      "name",
	"nationality":   "nationality",
	"occupation":    "occupation",
	"kycStatus":     "kyc_status",
	"kycScore":      "kyc_score",
	"isPep":         KeyIsPep,
	"monthlyIncome": KeyMonthlyIncome,
	"dob":           KeyDateOfBirth,
	"customerSince": KeyCustomerSince,

	// Поведенческие агрегаты отправителя
	"txnCountLast7Days":     "txn_count_last_7_days",
	"totalAmountLast30Days": "total_amount_last_30_days",
	"daysSinceLastTxn":      "days_since_last_txn",

	// Агрегаты получателя, в том числе на момент транзакции
	"beneficiaryReceiveCount":                   "beneficiary_receive_count",
	"beneficiaryTotalReceived":                  "beneficiary_total_received",
	"beneficiaryAvgReceivedAmount":              "beneficiary_avg_received_amount",
	"beneficiaryUniqueSenders":                  "beneficiary_unique_senders",
	"beneficiaryUniqueSenderNationalitiesSoFar": "beneficiary_unique_sender_nationalities_so_far",
	"beneficiaryPepSenderCountAtTimeOfTxn":      "beneficiary_pep_sender_count_at_time_of_txn",
	"beneficiaryUniqueSendersAtTimeOfTxn":       "beneficiary_unique_senders_at_time_of_txn",
	"beneficiaryReceiveCountSoFar":              "beneficiary_receive_count_so_far",
	"beneficiaryTotalReceivedSoFar":             "beneficiary_total_received_so_far",
}

// CanonicalToExternal - обратная таблица (для ответов и отладки).
var CanonicalToExternal = invert(ExternalToCanonical)

// Ключи, с которыми нормализатор работает отдельно.
const (
	KeyAccount            = "account"
	KeyBeneficiaryAccount = "account_1"
	KeyAmount             = "amount"
	KeyIsPep              = "is_pep"
	KeyMonthlyIncome      = "monthly_income"
	KeyDateOfBirth        = "date_of_birth"
	KeyCustomerSince      = "customer_since"

	KeyAge                 = "age"
	KeyTenureMonths        = "customer_tenure_month"
	KeyAmountToIncomeRatio = "amount_to_income_ratio"
)

// NumericKeys всегда приводятся к числу; мусор превращается в 0.
var NumericKeys = []string{
	"amount_received", KeyAmount, KeyMonthlyIncome, "kyc_score",
	"txn_count_last_7_days", "total_amount_last_30_days", "days_since_last_txn",
	"beneficiary_receive_count", "beneficiary_total_received", "beneficiary_avg_received_amount",
	"beneficiary_unique_senders", "beneficiary_unique_sender_nationalities_so_far",
	"beneficiary_pep_sender_count_at_time_of_txn", "beneficiary_unique_senders_at_time_of_txn",
	"beneficiary_receive_count_so_far", "beneficiary_total_received_so_far",
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
