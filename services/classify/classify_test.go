package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"coversync/models"
)

func TestClassifyPoster(t *testing.T) {
	c := Classify("Inception (2010).jpg")
	assert.Equal(t, models.FilePoster, c.Kind)
	assert.Equal(t, "Inception", c.CandidateTitle)
	assert.Equal(t, 2010, c.Year)
	assert.Equal(t, "poster.jpg", c.SlotFilename())
}

func TestClassifyPosterWithoutYear(t *testing.T) {
	c := Classify("Inception.png")
	assert.Equal(t, models.FilePoster, c.Kind)
	assert.Equal(t, "Inception", c.CandidateTitle)
	assert.Zero(t, c.Year)
}

func TestClassifyTitleAndYearIndependentOfSuffix(t *testing.T) {
	// The same title/year must come back for every suffix variant.
	for _, suffix := range []string{"", " - Season 2", " - S02 E05", " - Backdrop", " - Specials"} {
		name := fmt.Sprintf("Show Name (2019)%s.jpg", suffix)
		c := Classify(name)
		assert.Equal(t, "Show Name", c.CandidateTitle, "suffix %q", suffix)
		assert.Equal(t, 2019, c.Year, "suffix %q", suffix)
	}
}

func TestClassifySeason(t *testing.T) {
	c := Classify("Show Name (2019) - Season 2.jpg")
	assert.Equal(t, models.FileSeason, c.Kind)
	assert.Equal(t, 2, c.Season)
	assert.Equal(t, "Season02.jpg", c.SlotFilename())
}

func TestClassifySpecialsIsSeasonZero(t *testing.T) {
	c := Classify("Show Name (2019) - Specials.jpg")
	assert.Equal(t, models.FileSeason, c.Kind)
	assert.Zero(t, c.Season)
	assert.Equal(t, "Season00.jpg", c.SlotFilename())
}

func TestClassifyEpisode(t *testing.T) {
	c := Classify("Show Name (2019) - S2 E5.jpg")
	assert.Equal(t, models.FileEpisode, c.Kind)
	assert.Equal(t, 2, c.Season)
	assert.Equal(t, 5, c.Episode)
	assert.Equal(t, "S02E05.jpg", c.SlotFilename())
}

func TestClassifyBackdrop(t *testing.T) {
	for _, name := range []string{"Movie Title (2021) - Backdrop.jpg", "Movie Title (2021) - Background.png"} {
		c := Classify(name)
		assert.Equal(t, models.FileBackdrop, c.Kind, name)
		assert.Equal(t, "Movie Title", c.CandidateTitle, name)
		assert.Equal(t, 2021, c.Year, name)
	}
}

func TestClassifyCollection(t *testing.T) {
	c := Classify("Marvel Collection.jpg")
	assert.Equal(t, models.FileCollection, c.Kind)
	assert.Equal(t, "Marvel", c.CandidateTitle)
}

func TestClassifyFilmreiheToken(t *testing.T) {
	c := Classify("James Bond Filmreihe.jpg")
	assert.Equal(t, models.FileCollection, c.Kind)
	assert.Equal(t, "James Bond", c.CandidateTitle)
}

func TestCollectionWinsOverSeason(t *testing.T) {
	// Collections are never seasonal.
	c := Classify("Alien Collection - Season 1.jpg")
	assert.Equal(t, models.FileCollection, c.Kind)
	assert.Equal(t, "Alien", c.CandidateTitle)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "WhoAm I", SanitizeName(`Who*Am/ I?`))
	assert.Equal(t, "Dr. Strange", SanitizeName("Dr. Strange!"))
	assert.Equal(t, "AKA", SanitizeName("[AKA]"))
	assert.Equal(t, "Trailing", SanitizeName("Trailing..."))
}
