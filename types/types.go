package types

import (
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceVikidia     Source = "vikidia"
	SourceWikiversite Source = "wikiversite"
	SourcePDF         Source = "pdf_personnel"
	SourceAcademie    Source = "academie_en_ligne"
)

// Subject is a curriculum domain identifier (matière).
type Subject string

const (
	Mathematiques  Subject = "mathematiques"
	Francais       Subject = "francais"
	HistoireGeo    Subject = "histoire_geo"
	SVT            Subject = "svt"
	PhysiqueChimie Subject = "physique_chimie"
	Technologie    Subject = "technologie"
	Anglais        Subject = "anglais"
	Espagnol       Subject = "espagnol"
	Autre          Subject = "autre"
)

// Level is a school grade identifier (niveau).
type Level string

const (
	Level6eme    Level = "6eme"
	Level5eme    Level = "5eme"
	Level4eme    Level = "4eme"
	Level3eme    Level = "3eme"
	LevelCollege Level = "college"
)

// Collections of the vector index.
const (
	CollectionCours    = "cours_college"
	CollectionPersonal = "mes_cours"
)

// RawPage is one fetched source page, before cleaning.
type RawPage struct {
	Title            string  `json:"titre"`
	Text             string  `json:"texte"`
	URL              string  `json:"url"`
	SourceCategory   string  `json:"categorie"`
	Subject          Subject `json:"matiere"`
	Level            Level   `json:"niveau"`
	Source           Source  `json:"source"`
	WikiversityLevel int     `json:"niveau_wikiversite,omitempty"`
}

// Chunk is a bounded slice of a cleaned page, the unit of embedding.
type Chunk struct {
	Text         string
	Index        int
	TitleContext string
}

type Metadata struct {
	Source            Source  `json:"source"`
	Matiere           Subject `json:"matiere"`
	Niveau            Level   `json:"niveau"`
	Titre             string  `json:"titre"`
	URL               string  `json:"url"`
	Categorie         string  `json:"categorie"`
	ChunkIndex        int     `json:"chunk_index"`
	NiveauWikiversite int     `json:"niveau_wikiversite,omitempty"`
}

// ChunkRecord is the persisted corpus unit.
type ChunkRecord struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// StoredChunk is a ChunkRecord as it lives in the vector index.
type StoredChunk struct {
	ID         uuid.UUID
	DocID      uuid.UUID // uuid.Nil for scraped corpus chunks
	Collection string
	Record     ChunkRecord
	Embedding  []float32
	Distance   float64 // cosine similarity on search results
}

// Document is a personal PDF turned into records by the loader.
type Document struct {
	ID         uuid.UUID
	Title      string
	Records    []ChunkRecord
	Source     Source
	SourcePath string
	Pages      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Config struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	DoclingURL     string
	CropTop        float64
	CropBottom     float64
}

type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}
