/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

// Infinity is the bound magnitude treated as unbounded. Model files are
// plain JSON, which cannot carry IEEE infinities, so we use the same
// finite sentinel the usual solver interfaces use.
const Infinity = 1e30

// VarType classifies a model column.
type VarType int8

const (
	Continuous VarType = 'C'
	Integer    VarType = 'I'
	Binary     VarType = 'B'
)

// Sense is the relational sense of a row.
type Sense int8

const (
	LessEqual    Sense = '<'
	GreaterEqual Sense = '>'
	Equal        Sense = '='
)

// ObjSense is the optimization direction of a model.
type ObjSense int8

const (
	Minimize ObjSense = 1
	Maximize ObjSense = -1
)

// Variable is one column of a model.
type Variable struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Type  VarType `json:"type"`
	Obj   float64 `json:"obj"`
}

// Nonzero is one coefficient of a sparse row.
type Nonzero struct {
	Col  int     `json:"col"`
	Coef float64 `json:"coef"`
}

// Row is one linear constraint. Coefs may only reference columns of the
// owning model.
type Row struct {
	Name  string    `json:"name"`
	Coefs []Nonzero `json:"coefs"`
	Sense Sense     `json:"sense"`
	RHS   float64   `json:"rhs"`
}

// Model is a linear or mixed-integer program.
type Model struct {
	Name  string     `json:"name"`
	Sense ObjSense   `json:"sense"`
	Vars  []Variable `json:"vars"`
	Rows  []Row      `json:"rows"`
}

func (m *Model) NumVars() int { return len(m.Vars) }
func (m *Model) NumRows() int { return len(m.Rows) }

// AddVar appends a column and returns its index.
func (m *Model) AddVar(name string, lower, upper, obj float64, vtype VarType) int {
	m.Vars = append(m.Vars, Variable{Name: name, Lower: lower, Upper: upper, Type: vtype, Obj: obj})
	return len(m.Vars) - 1
}

// AddRow appends a constraint built from parallel index/value slices,
// the form in which all cut and row code in this package produces them.
func (m *Model) AddRow(name string, ind []int32, val []float64, sense Sense, rhs float64) int {
	coefs := make([]Nonzero, len(ind))
	for i := range ind {
		coefs[i] = Nonzero{Col: int(ind[i]), Coef: val[i]}
	}
	m.Rows = append(m.Rows, Row{Name: name, Coefs: coefs, Sense: sense, RHS: rhs})
	return len(m.Rows) - 1
}

// ObjCoefs returns the dense objective coefficient vector.
func (m *Model) ObjCoefs() []float64 {
	obj := make([]float64, len(m.Vars))
	for j := range m.Vars {
		obj[j] = m.Vars[j].Obj
	}
	return obj
}

// IsMIP reports whether any column carries an integrality requirement.
func (m *Model) IsMIP() bool {
	for j := range m.Vars {
		if m.Vars[j].Type != Continuous {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Solvers mutate bounds and rows during
// restore solves, so shared instances must be copied first.
func (m *Model) Clone() *Model {
	c := &Model{Name: m.Name, Sense: m.Sense}
	c.Vars = append([]Variable(nil), m.Vars...)
	c.Rows = make([]Row, len(m.Rows))
	for i := range m.Rows {
		c.Rows[i] = m.Rows[i]
		c.Rows[i].Coefs = append([]Nonzero(nil), m.Rows[i].Coefs...)
	}
	return c
}

// Check validates internal consistency of the model.
func (m *Model) Check() error {
	for i := range m.Rows {
		for _, nz := range m.Rows[i].Coefs {
			if nz.Col < 0 || nz.Col >= len(m.Vars) {
				return &ModelError{Model: m.Name, Row: i, Col: nz.Col}
			}
		}
	}
	return nil
}

// MasterColumn marks a column as owned by the master block in a
// BlockAssignment.
const MasterColumn = -1

// BlockAssignment maps every column of the original model to MasterColumn
// or to a sub-block index 0..K-1.
type BlockAssignment []int

// NumBlocks returns K, the number of distinct sub-blocks.
func (a BlockAssignment) NumBlocks() int {
	n := 0
	for _, b := range a {
		if b >= n {
			n = b + 1
		}
	}
	return n
}

// Instance is the on-disk unit of work: a model, its column-to-block
// assignment and, once solved, the solution written back next to it.
type Instance struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`

	Model  *Model          `json:"model"`
	Blocks BlockAssignment `json:"blocks"`

	Solution *Solution `json:"solution,omitempty"`
}

// Solution records the outcome of one coordinator run.
type Solution struct {
	Status     string    `json:"status"`
	Obj        float64   `json:"obj"`
	Bound      float64   `json:"bound"`
	X          []float64 `json:"x"`
	Cuts       int       `json:"cuts"`
	StopReason string    `json:"stop_reason,omitempty"`
	BestJob    int       `json:"best_job"`

	Time    string  `json:"time"`
	System  SysInfo `json:"system"`
	Comment string  `json:"comment"`
}

// SysInfo saves the basic system information
type SysInfo struct {
	Platform string
	CPU      string
	RAM      string
}
