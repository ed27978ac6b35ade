package model

// Category is an equipment category from the fixed catalog.
type Category string

// Categories.
const (
	CategoryWheelchair  Category = "cadeira_rodas"
	CategoryCrutches    Category = "muleta"
	CategoryWalker      Category = "andador"
	CategoryHospitalBed Category = "cama_hospitalar"
	CategoryShowerChair Category = "cadeira_banho"
	CategoryMattress    Category = "colchao_caixa_ovo"
	CategoryIVStand     Category = "suporte_soro"
	CategoryBedpan      Category = "papagaio_comadre"
	CategoryImmobilizer Category = "tipoia_imobilizador"
	CategoryOther       Category = "outros"
)

// CatalogEntry pairs a catalog value with its display label.
type CatalogEntry struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var categoryLabels = map[Category]string{
	CategoryWheelchair:  "Cadeira de Rodas",
	CategoryCrutches:    "Muletas",
	CategoryWalker:      "Andador",
	CategoryHospitalBed: "Cama Hospitalar",
	CategoryShowerChair: "Cadeira de Banho",
	CategoryMattress:    "Colchão Pneumático/Caixa de Ovo",
	CategoryIVStand:     "Suporte de Soro",
	CategoryBedpan:      "Papagaio/Comadre",
	CategoryImmobilizer: "Tipóia/Imobilizador",
	CategoryOther:       "Outros / Diversos",
}

// Categories lists the catalog in display order.
var Categories = []Category{
	CategoryWheelchair,
	CategoryCrutches,
	CategoryWalker,
	CategoryHospitalBed,
	CategoryShowerChair,
	CategoryMattress,
	CategoryIVStand,
	CategoryBedpan,
	CategoryImmobilizer,
	CategoryOther,
}

// Valid reports whether c is in the catalog.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name, or the raw value for unknown categories.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Condition is the physical state of a donated item.
type Condition string

// Conditions.
const (
	ConditionNew         Condition = "novo"
	ConditionGood        Condition = "bom"
	ConditionNeedsRepair Condition = "precisa_reparo"
)

var conditionLabels = map[Condition]string{
	ConditionNew:         "Novo - Nunca usado",
	ConditionGood:        "Bom Estado - Funcionando perfeitamente",
	ConditionNeedsRepair: "Precisa Reparo - Requer manutenção",
}

// Conditions lists every condition.
var Conditions = []Condition{ConditionNew, ConditionGood, ConditionNeedsRepair}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	_, ok := conditionLabels[c]
	return ok
}

// Label returns the display name of the condition.
func (c Condition) Label() string {
	if l, ok := conditionLabels[c]; ok {
		return l
	}
	return string(c)
}

// CategoryCatalog returns the categories as value/label pairs.
func CategoryCatalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, CatalogEntry{Value: string(c), Label: c.Label()})
	}
	return out
}

// ConditionCatalog returns the conditions as value/label pairs.
func ConditionCatalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(Conditions))
	for _, c := range Conditions {
		out = append(out, CatalogEntry{Value: string(c), Label: c.Label()})
	}
	return out
}
