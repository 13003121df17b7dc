package category

// PHROG annotation table distributed by the PHROG database.
const (
	annotationTableURL  = "https://phrogs.lmge.uca.fr/downloads_from_website/phrog_annot_v4.tsv"
	annotationTableName = "phrog_annot_v4.tsv"
)

// AnnotationTableURL returns the URL of the public PHROG annotation table.
func AnnotationTableURL() string {
	return annotationTableURL
}

// AnnotationTableName returns the file name used for the downloaded table.
func AnnotationTableName() string {
	return annotationTableName
}
