package history

import "time"

// ExampleRecords returns the two demo conversations stored on first run.
func ExampleRecords(now time.Time) []Record {
	recent := now.Add(-2 * time.Hour)
	older := now.Add(-26 * time.Hour)

	irpj := []Message{
		{Role: RoleUser, Content: "Qual a alíquota do IRPJ no Lucro Presumido?", Timestamp: FormatTimestamp(recent)},
		{Role: RoleBot, Content: "No Lucro Presumido a alíquota do IRPJ é de **15%** sobre a base presumida, com adicional de **10%** sobre a parcela que exceder R$ 20.000,00 por mês.", Timestamp: FormatTimestamp(recent.Add(30 * time.Second))},
	}
	icms := []Message{
		{Role: RoleUser, Content: "Como funciona a substituição tributária do ICMS em São Paulo?", Timestamp: FormatTimestamp(older)},
		{Role: RoleBot, Content: "Na substituição tributária o contribuinte substituto recolhe antecipadamente o ICMS devido nas operações subsequentes. Em SP as regras estão no RICMS/SP, artigos 313-A e seguintes.", Timestamp: FormatTimestamp(older.Add(45 * time.Second))},
	}

	return []Record{
		{
			ID:        recent.UnixMilli(),
			AgentID:   "irpj",
			AgentName: "Agente IRPJ",
			Timestamp: FormatTimestamp(recent),
			Messages:  irpj,
			Preview:   buildPreview(irpj),
		},
		{
			ID:        older.UnixMilli(),
			AgentID:   "icms-sp",
			AgentName: "Agente ICMS SP",
			Timestamp: FormatTimestamp(older),
			Messages:  icms,
			Preview:   buildPreview(icms),
		},
	}
}
